package services

import "strings"

const redactedPlaceholder = "[REDACTED]"

// Redactor scrubs configured credential values out of error text before it is
// persisted or surfaced. Error messages from vendor SDKs sometimes echo the
// request, API key and all.
type Redactor struct {
	replacer *strings.Replacer
}

// NewRedactor builds a redactor for the given secret values. Empty and
// trivially short values are ignored so the replacer never mangles ordinary
// words.
func NewRedactor(secrets []string) *Redactor {
	var pairs []string
	for _, s := range secrets {
		if len(s) < 6 {
			continue
		}
		pairs = append(pairs, s, redactedPlaceholder)
	}
	return &Redactor{replacer: strings.NewReplacer(pairs...)}
}

// Redact returns msg with every known secret replaced.
func (r *Redactor) Redact(msg string) string {
	return r.replacer.Replace(msg)
}

// RedactError formats an error for storage with secrets scrubbed. A nil error
// yields the empty string.
func (r *Redactor) RedactError(err error) string {
	if err == nil {
		return ""
	}
	return r.Redact(err.Error())
}
