// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"querygate/cli/internal/errors"
)

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Mask(err.Error())
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

var kindTitles = map[errors.Kind]string{
	errors.Connection:     "Database Unreachable",
	errors.SafetyRejected: "Query Rejected",
	errors.Execution:      "Query Failed",
	errors.Normalization:  "Unreadable Result",
	errors.Cache:          "Cache Unavailable",
	errors.Config:         "Configuration Problem",
	errors.Proposal:       "No Query Proposed",
}

// FormatError renders a pipeline error as a titled block with a next step.
// Unknown kinds get a generic title.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	kind := errors.KindOf(err)
	title, ok := kindTitles[kind]
	if !ok {
		title = "Error"
	}

	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(title))
	b.WriteString("\n")
	b.WriteString(Mask(errors.MessageOf(err)))
	b.WriteString("\n")

	switch kind {
	case errors.Connection:
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Check the connection with 'querygate health' or run 'querygate connect'"))
	case errors.SafetyRejected:
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Only read-only queries are executed"))
	case errors.Config:
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'querygate dbinfo' to review the saved configuration"))
	case errors.Proposal:
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Rephrase the question or write the query directly"))
	}

	if kind != "" {
		if inner := stderrors.Unwrap(err); inner != nil {
			b.WriteString("\n")
			b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(inner.Error())))
		}
	}
	return b.String()
}
