package tools

import (
	nethttp "net/http"

	"github.com/agentkernel/core/internal/security"
	"github.com/agentkernel/core/internal/tools/files"
	"github.com/agentkernel/core/internal/tools/http"
	toolsjson "github.com/agentkernel/core/internal/tools/json"
	"github.com/agentkernel/core/internal/tools/text"
	"github.com/agentkernel/core/pkg/models"
)

// StandardConfig controls construction of the fixed eleven-member
// standard tool set.
type StandardConfig struct {
	Workspace     string
	Manager       *security.Manager
	HTTPClient    *nethttp.Client
	HTTPUserAgent string
	MaxReadBytes  int
	MaxBodyBytes  int
}

// RegisterStandardTools installs every member of the closed StandardTool
// enum into r. Call this once at startup before any custom tool
// registration.
func RegisterStandardTools(r *Registry, cfg StandardConfig) error {
	httpCfg := http.Config{
		Manager:   cfg.Manager,
		Client:    cfg.HTTPClient,
		MaxBody:   cfg.MaxBodyBytes,
		UserAgent: cfg.HTTPUserAgent,
	}

	registrations := []struct {
		std  models.StandardTool
		tool Tool
	}{
		{models.HTTPGet, http.NewGetTool(httpCfg)},
		{models.HTTPPost, http.NewPostTool(httpCfg)},
		{models.FileRead, files.NewReadTool(cfg.Workspace, cfg.Manager, cfg.MaxReadBytes)},
		{models.FileWrite, files.NewWriteTool(cfg.Workspace, cfg.Manager)},
		{models.FileList, files.NewListTool(cfg.Workspace, cfg.Manager)},
		{models.JSONParse, toolsjson.NewParseTool()},
		{models.JSONExtract, toolsjson.NewExtractTool()},
		{models.JSONPretty, toolsjson.NewPrettyTool()},
		{models.TextUppercase, text.NewUppercaseTool()},
		{models.TextLowercase, text.NewLowercaseTool()},
		{models.TextAnalyze, text.NewAnalyzeTool()},
	}

	for _, reg := range registrations {
		if err := r.RegisterStandard(reg.std, reg.tool); err != nil {
			return err
		}
	}
	return nil
}
