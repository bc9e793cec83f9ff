package accesslog

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the YYYY-MM-DD HH:MM:SS layout used in every line
const TimestampLayout = "2006-01-02 15:04:05"

// Separator splits the line timestamp from the message
const Separator = " - "

// Sentinels for absent headers and failed lookups
const (
	Unknown = "Unknown"
	None    = "None"
)

// Record is one enriched request, written once and never mutated
type Record struct {
	Timestamp      time.Time // Request start
	ClientIP       string
	Method         string
	URL            string
	UserAgent      string
	Device         string
	OS             string
	Browser        string
	Country        string
	City           string
	Latitude       string
	Longitude      string
	AcceptLanguage string
	Referer        string
	Origin         string
	ProcessingTime time.Duration
}

// Field is a single key/value pair of the message
type Field struct {
	Key   string
	Value string
}

// Fields returns the message fields in their fixed order
func (r *Record) Fields() []Field {
	return []Field{
		{"Timestamp", r.Timestamp.Format(TimestampLayout)},
		{"Client IP", r.ClientIP},
		{"Method", r.Method},
		{"URL", r.URL},
		{"User-Agent", r.UserAgent},
		{"Device", r.Device},
		{"OS", r.OS},
		{"Browser", r.Browser},
		{"Country", r.Country},
		{"City", r.City},
		{"Latitude", r.Latitude},
		{"Longitude", r.Longitude},
		{"Accept-Language", r.AcceptLanguage},
		{"Referer", r.Referer},
		{"Origin", r.Origin},
		{"Processing Time", fmt.Sprintf("%.3fs", r.ProcessingTime.Seconds())},
	}
}

// Message renders "<key>: <value>, <key>: <value>, ..."
func (r *Record) Message() string {
	var b strings.Builder
	for i, f := range r.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(singleLine(f.Value))
	}
	return b.String()
}

// Line renders the persisted form "<now> - <message>\n"
func (r *Record) Line(now time.Time) string {
	return now.Format(TimestampLayout) + Separator + r.Message() + "\n"
}

// singleLine keeps one record on one line
func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
