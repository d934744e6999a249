// Package mail renders and delivers outbound email.
package mail

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/kgrill/auth-core/internal/model"
)

var (
	//go:embed templates/activation_subject.txt
	activationSubjectSrc string
	//go:embed templates/activation_body.txt
	activationBodySrc string
)

// Templates holds the compiled email templates.
type Templates struct {
	activationSubject *pongo2.Template
	activationBody    *pongo2.Template
}

// NewTemplates compiles the embedded templates.
func NewTemplates() (*Templates, error) {
	subject, err := pongo2.FromString(activationSubjectSrc)
	if err != nil {
		return nil, fmt.Errorf("compile activation subject: %w", err)
	}
	body, err := pongo2.FromString(activationBodySrc)
	if err != nil {
		return nil, fmt.Errorf("compile activation body: %w", err)
	}
	return &Templates{activationSubject: subject, activationBody: body}, nil
}

// RenderActivation builds the activation email for n.
func (t *Templates) RenderActivation(n model.ActivationNotice) (string, string, error) {
	ctx := pongo2.Context{
		"name":    n.FullName,
		"code":    n.Code,
		"url":     n.URL,
		"expires": n.ExpiresAt.UTC().Format("15:04 MST, 02 Jan 2006"),
	}
	subject, err := t.activationSubject.Execute(ctx)
	if err != nil {
		return "", "", fmt.Errorf("render activation subject: %w", err)
	}
	body, err := t.activationBody.Execute(ctx)
	if err != nil {
		return "", "", fmt.Errorf("render activation body: %w", err)
	}
	return strings.TrimSpace(subject), body, nil
}
