package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/John-Robertt/lumiscrape/internal/domain"
)

// Kind 是单个条目处理结果的分类（替代“用异常类型做控制流”）。
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindParseError
	KindNetworkError
	KindProbeError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindParseError:
		return "parse_error"
	case KindNetworkError:
		return "network_error"
	case KindProbeError:
		return "probe_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrorCode 把 Kind 映射为 report 中的 error_code。
func (k Kind) ErrorCode() string {
	switch k {
	case KindOK:
		return ""
	case KindNotFound:
		return domain.ErrCodeNotFound
	case KindParseError:
		return domain.ErrCodeParseFailed
	case KindProbeError:
		return domain.ErrCodeProbeFailed
	default:
		return domain.ErrCodeNetworkFailed
	}
}

// Error 是 provider 阶段的可追溯错误。
type Error struct {
	ID    domain.ItemID
	Stage string // "fetch" / "parse" / "probe"
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("id=%s stage=%s: %v", e.ID, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result 是单个条目的处理结果：要么有 Record（Kind=OK），要么有 Err。
type Result struct {
	ID     domain.ItemID
	URL    string
	Record *domain.MediaRecord
	Kind   Kind
	Err    error
}

func (r Result) OK() bool { return r.Kind == KindOK && r.Record != nil }

// Scrape 依次执行 fetch -> parse -> probe，并把任何失败归类到 Result.Kind。
func Scrape(ctx context.Context, src Source, id domain.ItemID, c *http.Client, prober Prober) Result {
	res := Result{ID: id, URL: src.ItemURL(id)}
	fail := func(stage string, k Kind, err error) Result {
		res.Kind = k
		res.Err = &Error{ID: id, Stage: stage, Kind: k, Err: err}
		return res
	}

	pages, err := src.Fetch(ctx, id, c)
	if err != nil {
		if IsNotFound(err) {
			return fail("fetch", KindNotFound, err)
		}
		return fail("fetch", KindNetworkError, err)
	}

	ex, err := src.Parse(id, pages)
	if err != nil {
		if IsNotFound(err) {
			return fail("parse", KindNotFound, err)
		}
		return fail("parse", KindParseError, err)
	}

	if prober == nil {
		return fail("probe", KindProbeError, errors.New("prober 为空"))
	}
	minutes, err := prober.Minutes(ctx, ex.MediaURL)
	if err != nil {
		return fail("probe", KindProbeError, err)
	}

	rec := ex.Record(minutes)
	if n := rec.AttrCount(); n != domain.ExpectedAttrCount {
		log.Warn().
			Str("id", rec.ID()).
			Int("attrs", n).
			Msgf("记录包含 %d 个属性，而不是 %d", n, domain.ExpectedAttrCount)
	}

	res.Kind = KindOK
	res.Record = rec
	return res
}
