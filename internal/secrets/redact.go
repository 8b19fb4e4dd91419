// Package secrets scrubs credentials out of command lines and command output
// before they reach logs, session records or API responses.
package secrets

import (
	"net/url"
	"regexp"
	"strings"
)

// Mask replaces every redacted fragment.
const Mask = "***"

var (
	userinfoPattern = regexp.MustCompile(`://[^/\s]*@`)
	privateToken    = regexp.MustCompile(`(?i)PRIVATE-TOKEN:.*`)
	basicAuth       = regexp.MustCompile(`(?i)Authorization:\s*Basic\s+\S+`)
	bearerAuth      = regexp.MustCompile(`(?i)Authorization:\s*Bearer\s+\S+`)
)

// RedactOutput strips every literal token, its URL-encoded forms and any
// scheme://user:pass@ userinfo from text.
func RedactOutput(text string, tokens ...string) string {
	if text == "" {
		return text
	}
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		text = strings.ReplaceAll(text, tok, Mask)
		if enc := url.QueryEscape(tok); enc != tok {
			text = strings.ReplaceAll(text, enc, Mask)
		}
		if enc := url.PathEscape(tok); enc != tok {
			text = strings.ReplaceAll(text, enc, Mask)
		}
	}
	return userinfoPattern.ReplaceAllString(text, "://"+Mask+"@")
}

// RedactArgs renders argv as a single line with auth headers and URL
// userinfo masked. It is the only form in which a command line is logged.
func RedactArgs(argv []string) string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = redactArg(arg)
	}
	return strings.Join(out, " ")
}

func redactArg(arg string) string {
	switch {
	case privateToken.MatchString(arg):
		return privateToken.ReplaceAllString(arg, "PRIVATE-TOKEN: "+Mask)
	case basicAuth.MatchString(arg):
		return basicAuth.ReplaceAllString(arg, "Authorization: Basic "+Mask)
	case bearerAuth.MatchString(arg):
		return bearerAuth.ReplaceAllString(arg, "Authorization: Bearer "+Mask)
	case strings.Contains(arg, "://") && strings.Contains(arg, "@"):
		return userinfoPattern.ReplaceAllString(arg, "://"+Mask+"@")
	}
	return arg
}
