package mcptools

// WireRegistry registers every known tool definition against its concrete
// handler, built from deps. Call once at startup after the upstream clients,
// key pools, and rate gate exist.
func WireRegistry(deps *Deps) *Registry {
	r := NewRegistry()

	r.MustRegister(TavilySearchDefinition, NewTavilySearchHandler(deps))
	r.MustRegister(TavilyExtractDefinition, NewTavilyExtractHandler(deps))
	r.MustRegister(TavilyCrawlDefinition, NewTavilyCrawlHandler(deps))
	r.MustRegister(TavilyMapDefinition, NewTavilyMapHandler(deps))
	r.MustRegister(TavilyResearchDefinition, NewTavilyResearchHandler(deps))
	r.MustRegister(BraveWebSearchDefinition, NewBraveWebSearchHandler(deps))
	r.MustRegister(BraveLocalSearchDefinition, NewBraveLocalSearchHandler(deps))

	return r
}
