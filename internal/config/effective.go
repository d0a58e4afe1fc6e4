package config

// Effective is the normalized, deeply-copied configuration passed to core
// subsystems. It may carry secrets (e.g. the OpenAI API key) and therefore
// must never reach a plugin directly — plugins receive Public() instead.
type Effective struct {
	QuietHours *QuietHoursConfig
	Render     RenderConfig
	Archive    ArchiveConfig
	AI         AIConfig
}

// Public is the plugin-facing view of Effective with every secret field
// stripped. Both Effective and Public are returned as independent copies so
// a caller mutating one cannot affect the hub's live configuration or the
// other view.
type Public struct {
	QuietHours *QuietHoursConfig
	Render     RenderConfig
	Archive    ArchiveConfig
	AI         PublicAI
}

// PublicAI is AIConfig with the OpenAI secret fields removed.
type PublicAI struct {
	Enabled  bool
	Provider string
	OpenAI   PublicOpenAI
}

// PublicOpenAI is OpenAIConfig with APIKey and BaseURL removed. ModelsByQuality
// is not secret and is retained so plugins can route by declared quality tier.
type PublicOpenAI struct {
	ModelsByQuality map[string]string
}

// Normalize builds the deeply-copied Effective configuration from the
// loaded Config. Call this once at startup; hand the result to subsystem
// constructors instead of passing *Config around, so nothing downstream can
// mutate the live configuration in place.
func (c *Config) Normalize() Effective {
	var qh *QuietHoursConfig
	if c.QuietHours != nil {
		cp := *c.QuietHours
		qh = &cp
	}

	return Effective{
		QuietHours: qh,
		Render:     copyRenderConfig(c.Render),
		Archive:    c.Archive,
		AI:         copyAIConfig(c.AI),
	}
}

// Public returns the secrets-stripped view of this Effective configuration.
func (e Effective) Public() Public {
	var qh *QuietHoursConfig
	if e.QuietHours != nil {
		cp := *e.QuietHours
		qh = &cp
	}

	models := make(map[string]string, len(e.AI.OpenAI.ModelsByQuality))
	for k, v := range e.AI.OpenAI.ModelsByQuality {
		models[k] = v
	}

	return Public{
		QuietHours: qh,
		Render:     copyRenderConfig(e.Render),
		Archive:    e.Archive,
		AI: PublicAI{
			Enabled:  e.AI.Enabled,
			Provider: e.AI.Provider,
			OpenAI:   PublicOpenAI{ModelsByQuality: models},
		},
	}
}

func copyRenderConfig(r RenderConfig) RenderConfig {
	prefixes := make(map[string]string, len(r.Prefixes))
	for k, v := range r.Prefixes {
		prefixes[k] = v
	}
	templates := make(map[string]string, len(r.Templates))
	for k, v := range r.Templates {
		templates[k] = v
	}
	return RenderConfig{Prefixes: prefixes, Templates: templates}
}

func copyAIConfig(a AIConfig) AIConfig {
	models := make(map[string]string, len(a.OpenAI.ModelsByQuality))
	for k, v := range a.OpenAI.ModelsByQuality {
		models[k] = v
	}
	cp := a
	cp.OpenAI.ModelsByQuality = models
	return cp
}
