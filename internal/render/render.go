// Package render turns post bodies into HTML and checks them before publication.
package render

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/codu-code/codu/internal/cache"
	"github.com/codu-code/codu/internal/util"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mmarkdown/mmark/v2/lang"
	"github.com/mmarkdown/mmark/v2/mast"
	"github.com/mmarkdown/mmark/v2/mparser"
	"github.com/mmarkdown/mmark/v2/render/mhtml"
	"github.com/rs/zerolog"
)

var renderLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	renderLogger = l
}

const classicExtensions = parser.Tables | parser.FencedCode | parser.Autolink | parser.Strikethrough |
	parser.SpaceHeadings | parser.HeadingIDs | parser.BackslashLineBreak | parser.SuperSubscript |
	parser.DefinitionLists | parser.AutoHeadingIDs | parser.Footnotes | parser.OrderedListStart |
	parser.NoIntraEmphasis | parser.NonBlockingSpace

// Renderer renders markdown and keeps the output in a cache store keyed by
// content hash and syntax theme.
type Renderer struct {
	store cache.Store
	ttl   time.Duration

	// serializes misses so concurrent readers of a fresh post render it once
	mu sync.Mutex

	// OnLookup, when set, observes whether each Render was served from cache.
	OnLookup func(ctx context.Context, hit bool)
}

func (r *Renderer) observe(ctx context.Context, hit bool) {
	if r.OnLookup != nil {
		r.OnLookup(ctx, hit)
	}
}

func NewRenderer(store cache.Store, ttl time.Duration) *Renderer {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &Renderer{store: store, ttl: ttl}
}

func CacheKey(contentHash, syntaxTheme string) string {
	return "render:" + contentHash + ":" + syntaxTheme
}

// Render returns cached HTML when available. Cache backend failures are
// logged and the body is rendered directly.
func (r *Renderer) Render(ctx context.Context, md []byte, contentHash, syntaxTheme string) []byte {
	if contentHash == "" {
		renderLogger.Warn().Msg("Content hash is empty, skipping cache check")
		return RenderMarkdown(md, syntaxTheme)
	}

	key := CacheKey(contentHash, syntaxTheme)
	if html, ok, err := r.store.Get(ctx, key); err == nil && ok {
		renderLogger.Debug().Str("contentHash", contentHash).Str("syntaxTheme", syntaxTheme).Msg("Cache hit for rendered markdown")
		r.observe(ctx, true)
		return html
	} else if err != nil {
		renderLogger.Warn().Err(err).Msg("Render cache read failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if html, ok, err := r.store.Get(ctx, key); err == nil && ok {
		r.observe(ctx, true)
		return html
	}
	r.observe(ctx, false)

	renderLogger.Debug().Str("contentHash", contentHash).Str("syntaxTheme", syntaxTheme).Msg("Cache miss for rendered markdown")
	html := RenderMarkdown(md, syntaxTheme)
	if err := r.store.Set(ctx, key, html, r.ttl); err != nil {
		renderLogger.Warn().Err(err).Msg("Render cache write failed")
	}
	return html
}

// Invalidate drops every themed rendering of a body.
func (r *Renderer) Invalidate(ctx context.Context, contentHash string) error {
	return r.store.DeletePrefix(ctx, "render:"+contentHash+":")
}

// WarmCache pre-renders a body in the background.
func (r *Renderer) WarmCache(md []byte, contentHash, syntaxTheme string) {
	go func() {
		r.Render(context.Background(), md, contentHash, syntaxTheme)
		renderLogger.Debug().Str("contentHash", contentHash).Str("syntaxTheme", syntaxTheme).Msg("Cache warming completed")
	}()
}

// RenderMarkdown picks the mmark pipeline for bodies carrying a %%% title
// block and the classic one otherwise.
func RenderMarkdown(md []byte, syntaxTheme string) []byte {
	if util.HasFrontMatter(md) {
		html, _ := RenderMarkdownMmark(md, syntaxTheme)
		return html
	}
	return RenderMarkdownClassic(md, syntaxTheme)
}

func codeBlockHook(w io.Writer, node ast.Node, syntaxTheme string) bool {
	code, ok := node.(*ast.CodeBlock)
	if !ok {
		return false
	}
	var language string
	if info := code.Info; info != nil {
		language = string(info)
	}
	fmt.Fprintf(w, "<div class=\"highlight\">%s</div>", HighlightCode(string(code.Literal), language, syntaxTheme))
	return true
}

func RenderMarkdownClassic(md []byte, syntaxTheme string) []byte {
	opts := md_html.RendererOptions{
		Flags: md_html.CommonFlags | md_html.SkipHTML | md_html.HrefTargetBlank |
			md_html.NofollowLinks | md_html.FootnoteReturnLinks,
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if !entering {
				return ast.GoToNext, false
			}
			if codeBlockHook(w, node, syntaxTheme) {
				return ast.GoToNext, true
			}
			if tag, ok := node.(*TagNode); ok {
				renderTag(w, tag)
				return ast.GoToNext, true
			}
			return ast.GoToNext, false
		},
	}

	p := parser.NewWithExtensions(classicExtensions)
	p.Opts.ParserHook = tagHook

	doc := p.Parse(markdown.NormalizeNewlines(md))
	return markdown.Render(doc, md_html.NewRenderer(opts))
}

func RenderMarkdownMmark(md []byte, syntaxTheme string) ([]byte, *mast.TitleData) {
	md = markdown.NormalizeNewlines(md)

	p := parser.NewWithExtensions(mparser.Extensions | parser.NoIntraEmphasis)

	init := mparser.NewInitial("")
	var info *mast.TitleData

	p.Opts = parser.Options{
		ParserHook: func(data []byte) (ast.Node, []byte, int) {
			if node, rest, consumed := tagHook(data); consumed > 0 {
				return node, rest, consumed
			}
			node, data, consumed := mparser.Hook(data)
			if t, ok := node.(*mast.Title); ok {
				info = t.TitleData
			}
			return node, data, consumed
		},
		ReadIncludeFn: init.ReadInclude,
		Flags:         parser.FlagsNone,
	}

	doc := markdown.Parse(md, p)
	mparser.AddIndex(doc)

	if info == nil {
		info = &mast.TitleData{Title: "Untitled", Language: "en"}
	}
	if info.Language == "" {
		info.Language = "en"
	}

	mhtmlOpts := mhtml.RendererOptions{
		Language: lang.New(info.Language),
	}

	opts := md_html.RendererOptions{
		RenderNodeHook: func(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
			if entering {
				if codeBlockHook(w, node, syntaxTheme) {
					return ast.GoToNext, true
				}
				if tag, ok := node.(*TagNode); ok {
					renderTag(w, tag)
					return ast.GoToNext, true
				}
			}
			return mhtmlOpts.RenderHook(w, node, entering)
		},
		Flags: md_html.CommonFlags | md_html.SkipHTML | md_html.FootnoteNoHRTag | md_html.FootnoteReturnLinks,
	}

	return markdown.Render(doc, md_html.NewRenderer(opts)), info
}
