package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"yqhp/tts-engine/internal/config"
	"yqhp/tts-engine/pkg/logger"
	"yqhp/tts-engine/pkg/types"
)

const defaultRequestTimeout = 10 * time.Minute

// HTTPProvider talks to a remote inference server hosting the executor
// variants. One shared fasthttp client backs every engine handle. It also
// implements types.MemoryProber by querying the server's memory endpoint,
// so the estimator sees the accelerator the executor actually runs on.
type HTTPProvider struct {
	baseURL  string
	timeout  time.Duration
	language string
	client   *fasthttp.Client
}

// NewHTTPProvider creates a provider for the configured engine service.
func NewHTTPProvider(cfg config.EngineConfig) *HTTPProvider {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPProvider{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		timeout:  timeout,
		language: cfg.Language,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        30 * time.Second,
		},
	}
}

// Loader returns a loader that asks the server to load the variant and
// captures the resulting model shape.
func (p *HTTPProvider) Loader(variant string) types.EngineLoader {
	return func(ctx context.Context) (types.Engine, error) {
		var resp loadResponse
		err := p.postJSON(ctx, "/v1/load", loadRequest{Variant: variant}, &resp)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", variant, err)
		}

		eng := &httpEngine{provider: p, variant: variant}
		if resp.Shape != nil {
			eng.shape = *resp.Shape
			eng.shapeKnown = true
		}
		return eng, nil
	}
}

// FreeMemory implements types.MemoryProber against the server.
func (p *HTTPProvider) FreeMemory() (types.MemoryInfo, bool) {
	var resp memoryResponse
	err := p.postJSON(context.Background(), "/v1/memory", struct{}{}, &resp)
	if err != nil || resp.Unknown {
		return types.MemoryInfo{}, false
	}
	return types.MemoryInfo{
		FreeBytes:           resp.FreeBytes,
		ReservedUnusedBytes: resp.ReservedUnusedBytes,
	}, true
}

func (p *HTTPProvider) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return fmt.Errorf("POST %s: status %d: %s", path, code, truncate(resp.Body(), 200))
	}

	if out != nil {
		if err := sonic.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// httpEngine is one loaded variant on the remote server.
type httpEngine struct {
	provider   *HTTPProvider
	variant    string
	shape      types.ModelShape
	shapeKnown bool
}

// Shape returns the model geometry reported at load time.
func (e *httpEngine) Shape() (types.ModelShape, bool) {
	return e.shape, e.shapeKnown
}

// BuildContext asks the server to build the shared context and returns a
// remote handle plus the token counts the estimator needs.
func (e *httpEngine) BuildContext(ctx context.Context, spec types.ContextSpec) (*types.SharedContext, error) {
	var resp contextResponse
	err := e.provider.postJSON(ctx, "/v1/context", contextRequest{
		Variant:      e.variant,
		RefAudioPath: spec.RefAudioPath,
		RefText:      spec.RefText,
		AdapterPath:  spec.AdapterPath,
		Description:  spec.Description,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	return &types.SharedContext{
		Value:        resp.ContextID,
		PromptTokens: resp.PromptTokens,
		RefTextChars: resp.RefTextChars,
	}, nil
}

// Render executes one sub-batch on the server.
func (e *httpEngine) Render(ctx context.Context, req *types.RenderRequest) (*types.RenderResponse, error) {
	r := renderRequest{
		Variant:         e.variant,
		Texts:           req.Texts,
		Styles:          req.Styles,
		Language:        e.provider.language,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.Context != nil {
		if id, ok := req.Context.Value.(string); ok {
			r.ContextID = id
		}
	}

	var resp renderResponse
	if err := e.provider.postJSON(ctx, "/v1/render", r, &resp); err != nil {
		return nil, err
	}
	return &types.RenderResponse{
		Outputs:    resp.Outputs,
		SampleRate: resp.SampleRate,
	}, nil
}

// Release unloads the variant on the server. Errors are surfaced but the
// local handle is dead either way.
func (e *httpEngine) Release(ctx context.Context) error {
	err := e.provider.postJSON(ctx, "/v1/release", loadRequest{Variant: e.variant}, nil)
	if err != nil {
		logger.Warn("remote release failed", zap.String("variant", e.variant), zap.Error(err))
	}
	return err
}

// Wire formats for the inference server API.

type loadRequest struct {
	Variant string `json:"variant"`
}

type loadResponse struct {
	Shape *types.ModelShape `json:"shape,omitempty"`
}

type memoryResponse struct {
	FreeBytes           uint64 `json:"free_bytes"`
	ReservedUnusedBytes uint64 `json:"reserved_unused_bytes"`
	Unknown             bool   `json:"unknown,omitempty"`
}

type contextRequest struct {
	Variant      string `json:"variant"`
	RefAudioPath string `json:"ref_audio_path,omitempty"`
	RefText      string `json:"ref_text,omitempty"`
	AdapterPath  string `json:"adapter_path,omitempty"`
	Description  string `json:"description,omitempty"`
}

type contextResponse struct {
	ContextID    string `json:"context_id"`
	PromptTokens int    `json:"prompt_tokens"`
	RefTextChars int    `json:"ref_text_chars"`
}

type renderRequest struct {
	Variant         string              `json:"variant"`
	Texts           []string            `json:"texts"`
	ContextID       string              `json:"context_id,omitempty"`
	Styles          []types.StyleParams `json:"styles"`
	Language        string              `json:"language,omitempty"`
	MaxOutputTokens int                 `json:"max_output_tokens"`
}

type renderResponse struct {
	Outputs    [][]float32 `json:"outputs"`
	SampleRate int         `json:"sample_rate"`
}
