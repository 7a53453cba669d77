package observability

import "regexp"

var (
	reDSNUserInfo = regexp.MustCompile(`(?i)(://)([^:/@]+):([^@]+)(@)`)
	rePassword    = regexp.MustCompile(`(?i)(password=)([^\s;&]+)`)
)

// MaskDSN hides credentials in URL-style and key=value connection strings.
func MaskDSN(dsn string) string {
	out := reDSNUserInfo.ReplaceAllString(dsn, "$1$2:***$4")
	return rePassword.ReplaceAllString(out, "$1***")
}
