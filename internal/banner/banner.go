package banner

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

// Version of the service shown at startup
const Version = "0.1.0"

func Print() {
	ptermLogo, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithRGB("Access", pterm.NewRGB(0, 122, 204)),
		putils.LettersFromStringWithRGB("Lynx", pterm.NewRGB(255, 107, 53))).
		Srender()

	pterm.DefaultCenter.Print(ptermLogo)

	pterm.DefaultCenter.Print(
		pterm.DefaultHeader.
			WithFullWidth().
			WithBackgroundStyle(pterm.NewStyle(pterm.BgBlue)).
			WithMargin(5).
			Sprint(pterm.White("AccessLynx - Enriched Access Logging")),
	)

	pterm.Info.Println(
		"Every request tagged with client address, location and device." +
			"\nOne line per request, appended and never rewritten." +
			"\nVersion " + Version + ".",
	)
}
