package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	pdf "github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"invsync/internal"
	"invsync/internal/config"
)

// ErrNoData means every extraction pass failed or came back empty. The caller
// must keep the previous snapshot instead of overwriting it.
var ErrNoData = errors.New("no data extracted")

type PageRange struct {
	First int
	Last  int
}

func (p PageRange) String() string {
	return fmt.Sprintf("%d-%d", p.First, p.Last)
}

// ParsePageRanges parses a partition spec like "1-3,4-5,6-7". A single pass
// over a long report truncates before the last pages, so the document is read
// in slices; the partition is deployment tuning, not an algorithmic constant.
func ParsePageRanges(spec string) ([]PageRange, error) {
	parts := strings.Split(spec, ",")
	out := make([]PageRange, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		first, last, ok := strings.Cut(part, "-")
		if !ok {
			last = first
		}
		lo, err := strconv.Atoi(strings.TrimSpace(first))
		if err != nil {
			return nil, fmt.Errorf("bad page range %q: %w", part, err)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(last))
		if err != nil {
			return nil, fmt.Errorf("bad page range %q: %w", part, err)
		}
		if lo < 1 || hi < lo {
			return nil, fmt.Errorf("bad page range %q", part)
		}
		out = append(out, PageRange{First: lo, Last: hi})
	}
	if len(out) == 0 {
		return nil, errors.New("empty page range spec")
	}
	return out, nil
}

// clampRanges trims the configured partition to the actual page count.
// Ranges entirely past the end are dropped. pages <= 0 means the count is
// unknown and the partition is used as configured.
func clampRanges(ranges []PageRange, pages int) []PageRange {
	if pages <= 0 {
		return ranges
	}
	out := make([]PageRange, 0, len(ranges))
	for _, r := range ranges {
		if r.First > pages {
			continue
		}
		if r.Last > pages {
			r.Last = pages
		}
		out = append(out, r)
	}
	return out
}

type textGenerator interface {
	GenerateFromPDF(ctx context.Context, pdf []byte, prompt string) (string, error)
}

// Extractor converts one PDF into per-pass raw table text.
type Extractor struct {
	gen         textGenerator
	ranges      []PageRange
	concurrency int
	passDelay   time.Duration
	log         zerolog.Logger
}

func NewExtractor(gen textGenerator, cfg config.Config, log zerolog.Logger) (*Extractor, error) {
	ranges, err := ParsePageRanges(cfg.PageRanges)
	if err != nil {
		return nil, err
	}
	concurrency := cfg.ExtractConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Extractor{
		gen:         gen,
		ranges:      ranges,
		concurrency: concurrency,
		passDelay:   time.Duration(cfg.PassDelayMs) * time.Millisecond,
		log:         log,
	}, nil
}

// Extract runs one generation call per page range. Passes are independent: a
// failed or empty pass contributes nothing, and only when every pass comes
// back empty does the whole extraction count as failed. Results are returned
// in pass order regardless of completion order.
func (e *Extractor) Extract(ctx context.Context, content []byte) ([]internal.ExtractionPass, error) {
	ranges := clampRanges(e.ranges, pageCount(content))
	if len(ranges) == 0 {
		return nil, ErrNoData
	}

	passes := make([]internal.ExtractionPass, len(ranges))
	for i, r := range ranges {
		passes[i] = internal.ExtractionPass{
			Index:     i + 1,
			PageRange: r.String(),
			Prompt:    buildPassPrompt(r),
		}
	}

	if e.concurrency > 1 {
		e.runConcurrent(ctx, content, passes)
	} else {
		e.runSequential(ctx, content, passes)
	}

	got := 0
	for _, p := range passes {
		if strings.TrimSpace(p.Text) != "" {
			got++
		}
	}
	if got == 0 {
		return passes, ErrNoData
	}
	return passes, nil
}

func (e *Extractor) runSequential(ctx context.Context, content []byte, passes []internal.ExtractionPass) {
	for i := range passes {
		if i > 0 && e.passDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.passDelay):
			}
		}
		passes[i].Text = e.runPass(ctx, content, passes[i])
	}
}

func (e *Extractor) runConcurrent(ctx context.Context, content []byte, passes []internal.ExtractionPass) {
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i := range passes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			passes[i].Text = e.runPass(ctx, content, passes[i])
		}(i)
	}
	wg.Wait()
}

func (e *Extractor) runPass(ctx context.Context, content []byte, pass internal.ExtractionPass) string {
	text, err := e.gen.GenerateFromPDF(ctx, content, pass.Prompt)
	if err != nil {
		e.log.Warn().Err(err).Int("pass", pass.Index).Str("pages", pass.PageRange).Msg("extraction pass failed")
		return ""
	}
	rows := len(ParseTableRows(text))
	e.log.Info().Int("pass", pass.Index).Str("pages", pass.PageRange).Int("rows", rows).Msg("extraction pass done")
	return text
}

func buildPassPrompt(r PageRange) string {
	return fmt.Sprintf(`Parse pages %d-%d of the attached inventory PDF and extract the stock data as a markdown table.

Instructions:
- The table header must be exactly: Product Code, Description, On Hand, Quantity SC w/o DN, Available.
- Extract every inventory item on pages %d-%d without omission.
- Output the markdown table only, with no other text before or after it.
`, r.First, r.Last, r.First, r.Last)
}

func pageCount(content []byte) int {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}
