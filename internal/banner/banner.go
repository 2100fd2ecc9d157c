package banner

import "github.com/fatih/color"

func GetBanner() string {
	cyan := color.New(color.FgCyan).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	banner := `
` + cyan(`
▐▄• ▄ .▄▄ · .▄▄ ·  ▄▄▄·▄▄▄        ▄▄▄▄· ▄▄▄ .
 █▌█▌▪▐█ ▀. ▐█ ▀. ▐█ ▄█▀▄ █·▪     ▐█ ▀█▪▀▄.▀·
 ·██·  ▄▀▀▀█▄▄▀▀▀█▄ ██▀·▐▀▀▄  ▄█▀▄ ▐█▀▀█▄▐▀▀▪▄
▪▐█·█▌▐█▄▪▐█▐█▄▪▐█▐█▪·•▐█•█▌▐█▌.▐▌██▄▪▐█▐█▄▄▌
•▀▀ ▀▀ ▀▀▀▀  ▀▀▀▀ .▀   .▀  ▀ ▀█▄▀▪·▀▀▀▀  ▀▀▀
`) + `
        ` + red(`xssprobe - Browser-Verified XSS Detection`) + `

` + cyan(`━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━`) + `
  ` + yellow(`Features:`) + `
    • Execution-verified detection (dialogs, DOM, network)
    • Chromium / Firefox / WebKit engines
    • Context-aware smart payload selection
    • Payload effectiveness tracking
    • Result caching and session reuse
` + cyan(`━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━`) + `
`
	return banner
}
