// Package util provides utility functions for content hashing and front matter parsing.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/gomarkdown/markdown"
	"github.com/mmarkdown/mmark/v2/mast"
)

var ErrNoFrontMatter = errors.New("invalid front matter format")

var frontMatterDelimiter = []byte("%%%")

// FrontMatter is the TOML block between %%% delimiters at the top of an
// imported markdown document.
type FrontMatter struct {
	*mast.TitleData
	Tags         []string `toml:"tags"`
	Excerpt      string   `toml:"excerpt"`
	CanonicalURL string   `toml:"canonical_url"`

	// Consumed is the number of bytes of the normalized document taken by
	// the front matter block.
	Consumed int `toml:"-"`
}

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// HasFrontMatter reports whether md opens with a front matter delimiter line.
func HasFrontMatter(md []byte) bool {
	md = bytes.TrimLeft(markdown.NormalizeNewlines(md), "\n \t\r")
	return bytes.HasPrefix(md, append(frontMatterDelimiter, '\n'))
}

func GetFrontMatter(md []byte) (*FrontMatter, error) {
	md = markdown.NormalizeNewlines(md)
	md = bytes.TrimLeft(md, "\n \t\r")

	opener := append(append([]byte{}, frontMatterDelimiter...), '\n')
	if !bytes.HasPrefix(md, opener) {
		return nil, ErrNoFrontMatter
	}

	rest := md[len(opener):]

	var block []byte
	var end int
	if bytes.HasPrefix(rest, frontMatterDelimiter) {
		end = len(opener) + len(frontMatterDelimiter)
	} else {
		closing := append([]byte{'\n'}, frontMatterDelimiter...)
		second := bytes.Index(rest, closing)
		if second == -1 {
			return nil, ErrNoFrontMatter
		}
		block = rest[:second]
		end = len(opener) + second + len(closing)
	}
	if end < len(md) && md[end] == '\n' {
		end++
	}

	info := &FrontMatter{
		TitleData: &mast.TitleData{},
	}

	if _, err := toml.Decode(string(block), info); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	if info.Language == "" {
		info.Language = "en"
	}
	info.Consumed = end

	return info, nil
}

// StripFrontMatter returns md without its front matter block, if any.
func StripFrontMatter(md []byte) []byte {
	info, err := GetFrontMatter(md)
	if err != nil {
		return md
	}
	md = bytes.TrimLeft(markdown.NormalizeNewlines(md), "\n \t\r")
	return md[info.Consumed:]
}
