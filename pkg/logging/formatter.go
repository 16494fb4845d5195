// Package logging renders pipeline progress for terminals.
package logging

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Field names with special rendering.
const (
	FieldAction = "action"
	FieldStep   = "step"
)

// BulletFormatter formats log entries as hierarchical bullets.
//
// Entries with an "action" field produce top-level bullets, prefixed with
// the "step" field when present:
//
//	  * [2/8] sign-app
//
// Info-level entries without "action" produce sub-bullets:
//
//	    * submitted Demo.zip  submission=2efe2717-...
//
// Warnings and errors are marked:
//
//	    ! ticket not available yet
//	  x notarize-app: rejected: ...
//
// Other fields are appended as sorted key=value pairs.
type BulletFormatter struct{}

func (f *BulletFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer

	if action, ok := entry.Data[FieldAction]; ok {
		buf.WriteString("  * ")
		if step, ok := entry.Data[FieldStep]; ok {
			fmt.Fprintf(&buf, "[%v] ", step)
		}
		fmt.Fprintf(&buf, "%v", action)
		buf.WriteString(formatFields(entry.Data, FieldAction, FieldStep))
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	}

	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		buf.WriteString("  x ")
	case logrus.WarnLevel:
		buf.WriteString("    ! ")
	case logrus.InfoLevel:
		buf.WriteString("    * ")
	default:
		// debug output normally goes through TextFormatter
		buf.WriteString("      ")
	}
	buf.WriteString(entry.Message)
	buf.WriteString(formatFields(entry.Data))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// formatFields returns "  k=v k=v" for fields not in skip, or "".
func formatFields(fields logrus.Fields, skip ...string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !contains(skip, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return "  " + strings.Join(parts, " ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
