// Package profile holds the read-only snapshot of the user on whose behalf
// outreach is sent. The snapshot is loaded once per run and never mutated by
// the pipeline.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Attachment is a binary payload attached to outgoing emails, typically the
// resume PDF.
type Attachment struct {
	Filename string
	MIME     string
	Bytes    []byte
}

// Profile is the user snapshot consumed by the scorer, composer and
// dispatcher.
type Profile struct {
	Name    string
	Email   string
	Context string
	Links   []string
	Resume  *Attachment
}

// Config describes where the snapshot pieces live.
type Config struct {
	Name        string   `mapstructure:"name"`
	Email       string   `mapstructure:"email"`
	Context     string   `mapstructure:"context"`
	ContextFile string   `mapstructure:"context-file"`
	ResumeFile  string   `mapstructure:"resume-file"`
	ResumeMIME  string   `mapstructure:"resume-mime"`
	Links       []string `mapstructure:"links"`
}

var mimeByExtension = map[string]string{
	".pdf": "application/pdf",
	".txt": "text/plain",
	".md":  "text/markdown",
	".doc": "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument" +
		".wordprocessingml.document",
}

// Load builds the snapshot. Name and email are required; context and resume
// are optional. A context file takes precedence over inline context.
func Load(cfg Config) (*Profile, error) {
	name := strings.TrimSpace(cfg.Name)
	email := strings.TrimSpace(cfg.Email)
	if name == "" {
		return nil, errors.New("profile name is required")
	}
	if email == "" {
		return nil, errors.New("profile email is required")
	}

	context := strings.TrimSpace(cfg.Context)
	if cfg.ContextFile != "" {
		data, err := os.ReadFile(cfg.ContextFile)
		if err != nil {
			return nil, fmt.Errorf("reading profile context from %q: %w", cfg.ContextFile, err)
		}
		context = strings.TrimSpace(string(data))
	}

	p := &Profile{
		Name:    name,
		Email:   email,
		Context: context,
		Links:   cfg.Links,
	}

	if cfg.ResumeFile != "" {
		data, err := os.ReadFile(cfg.ResumeFile)
		if err != nil {
			return nil, fmt.Errorf("reading resume from %q: %w", cfg.ResumeFile, err)
		}
		p.Resume = &Attachment{
			Filename: filepath.Base(cfg.ResumeFile),
			MIME:     resolveMIME(cfg.ResumeMIME, cfg.ResumeFile),
			Bytes:    data,
		}
	}

	return p, nil
}

func resolveMIME(explicit, path string) string {
	if explicit != "" {
		return explicit
	}
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}
