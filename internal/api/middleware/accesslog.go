package middleware

import (
	"context"
	"time"

	"accesslynx/internal/accesslog"
	"accesslynx/internal/clientip"
	"accesslynx/internal/enrichment"
	"accesslynx/internal/parser/useragent"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
)

// RequestIDHeader carries the correlation id used in debug logging
const RequestIDHeader = "X-Request-ID"

// RecordSink receives completed access log records
type RecordSink interface {
	Emit(rec *accesslog.Record)
}

// AccessLog builds the enrichment middleware. Client resolution and
// geolocation run before the handler; the record is emitted after it, even
// when the handler panics. The response is never touched.
func AccessLog(resolver *clientip.Resolver, geo *enrichment.GeoEnricher, sink RecordSink, logger *pterm.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		requestID := req.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// Lookups outlive a disconnecting client; their own timeouts bound them
		lookupCtx := context.WithoutCancel(req.Context())

		clientIP := resolver.Resolve(lookupCtx, req.Header, req.RemoteAddr)
		geoFacets := geo.Enrich(lookupCtx, clientIP)

		ua := headerOr(c, "User-Agent", accesslog.Unknown)
		device := useragent.Parse(ua).Facets()

		rec := &accesslog.Record{
			Timestamp:      start,
			ClientIP:       clientIP,
			Method:         req.Method,
			URL:            FullURL(c),
			UserAgent:      ua,
			Device:         device.Device,
			OS:             device.OS,
			Browser:        device.Browser,
			Country:        geoFacets.Country,
			City:           geoFacets.City,
			Latitude:       geoFacets.Latitude,
			Longitude:      geoFacets.Longitude,
			AcceptLanguage: headerOr(c, "Accept-Language", accesslog.Unknown),
			Referer:        headerOr(c, "Referer", accesslog.None),
			Origin:         headerOr(c, "Origin", accesslog.None),
		}

		defer func() {
			recovered := recover()

			rec.ProcessingTime = time.Since(start)
			sink.Emit(rec)

			logger.Debug("Request enriched",
				logger.Args(
					"request_id", requestID,
					"client_ip", clientIP,
					"status", c.Writer.Status(),
					"duration", rec.ProcessingTime,
					"panicked", recovered != nil,
				))

			if recovered != nil {
				panic(recovered)
			}
		}()

		c.Next()
	}
}

// FullURL reconstructs the absolute request URL including the query string
func FullURL(c *gin.Context) string {
	req := c.Request

	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if proto := req.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	return scheme + "://" + host + req.URL.RequestURI()
}

func headerOr(c *gin.Context, name, fallback string) string {
	if value := c.GetHeader(name); value != "" {
		return value
	}
	return fallback
}
