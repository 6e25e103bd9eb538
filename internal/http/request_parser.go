// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Handlers accept both form-encoded bodies (HTMX default) and JSON bodies.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cagnotte/internal/core"
)

// maxBodyBytes bounds every request body read by the parser.
const maxBodyBytes = 64 << 10

// Form field names used by the templates.
const (
	fieldBudget    = "budget"
	fieldSurname   = "nom"
	fieldGivenName = "prenom"
	fieldPhone     = "telephone"
	fieldAmount    = "montant"
	fieldConfirmed = "confirmed"
)

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	query       url.Values
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once. Query parameters are kept
// as a fallback because HTMX sends DELETE parameters in the URL.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
		query:       r.URL.Query(),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns the sanitized value of key from the body, then the query string.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil && p.formData.Has(key) {
		return sanitizeInput(p.formData.Get(key))
	}
	return sanitizeInput(p.query.Get(key))
}

// GetRaw returns the value of key exactly as sent, for fields echoed back
// to the client while the user is still typing.
func (p *RequestBodyParser) GetRaw(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return stringValue(val)
		}
	}
	if p.formData != nil && p.formData.Has(key) {
		return p.formData.Get(key)
	}
	return p.query.Get(key)
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ContributionForm maps the parsed fields onto the domain form.
func (p *RequestBodyParser) ContributionForm() core.ContributionForm {
	return core.ContributionForm{
		Surname:   p.Get(fieldSurname),
		GivenName: p.Get(fieldGivenName),
		Phone:     p.Get(fieldPhone),
		Amount:    p.Get(fieldAmount),
	}
}

// Confirmer answers yes when the client sent confirmed=true, which the
// page does only after the browser confirm dialog was accepted.
func (p *RequestBodyParser) Confirmer() core.Confirmer {
	confirmed, _ := strconv.ParseBool(p.Get(fieldConfirmed))
	return core.ConfirmFunc(func(string) bool { return confirmed })
}

// parseOrFail parses the body and returns an error response on failure.
func parseOrFail(r *http.Request) (*RequestBodyParser, *HTMXResponseBuilder) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return nil, BadRequestError("Format de requête invalide")
	}
	return p, nil
}
