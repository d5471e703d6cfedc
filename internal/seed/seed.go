// Package seed reads prayer requests from YAML files for bulk import.
package seed

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/prayerwall/internal/model"
)

// File is the import document:
//
//	prayers:
//	  - title: Healing for Anna
//	    body: Surgery on Friday
//	    author: Ruth
type File struct {
	Prayers []Entry `yaml:"prayers"`
}

// Entry is one prayer request in an import file.
type Entry struct {
	Key    string `yaml:"key,omitempty"`
	Title  string `yaml:"title"`
	Body   string `yaml:"body,omitempty"`
	Author string `yaml:"author,omitempty"`
}

// Parse decodes an import document. defaultAuthor fills entries without an author.
func Parse(r io.Reader, defaultAuthor string) ([]model.PrayerItem, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode prayers: %w", err)
	}

	items := make([]model.PrayerItem, 0, len(f.Prayers))
	for i, e := range f.Prayers {
		title := strings.TrimSpace(e.Title)
		if title == "" {
			return nil, fmt.Errorf("prayer %d: title must not be empty", i+1)
		}
		author := strings.TrimSpace(e.Author)
		if author == "" {
			author = defaultAuthor
		}
		items = append(items, model.PrayerItem{
			Key:    strings.TrimSpace(e.Key),
			Title:  title,
			Body:   strings.TrimSpace(e.Body),
			Author: author,
		})
	}
	return items, nil
}
