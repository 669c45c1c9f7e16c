package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected options
	}{
		{"config", []string{"-c", "companion.yaml"}, options{configPath: "companion.yaml"}},
		{"version", []string{"-version"}, options{showVersion: true}},
		{"none", nil, options{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			opts, err := parseFlags("companion", tt.args, &out)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if opts != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, opts)
			}
		})
	}
}

func TestParseFlags_Usage(t *testing.T) {
	var out bytes.Buffer

	if _, err := parseFlags("companion", []string{"-h"}, &out); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("Expected flag.ErrHelp, got %v", err)
	}
	if !strings.HasPrefix(out.String(), "Usage: companion -c <config.yaml>") {
		t.Errorf("Expected the companion usage line, got '%s'", out.String())
	}

	out.Reset()
	if _, err := parseFlags("companion", []string{"-bogus"}, &out); err == nil {
		t.Error("Expected an error for an unknown flag")
	}
}
