package mcptools

// These definitions carry only name/description/schema; WireRegistry
// (wire.go) pairs each one with its handler once the upstream clients and
// key pools in Deps are constructed.

func schemaObject(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func integerProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func booleanProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func arrayOfStringProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

// TavilySearchDefinition describes tavily_search.
var TavilySearchDefinition = ToolDefinition{
	Name:        "tavily_search",
	Description: "Search the web via the Tavily-shaped provider.",
	InputSchema: schemaObject(map[string]any{
		"query":          stringProp("The search query."),
		"search_depth":   stringProp("basic or advanced."),
		"topic":          stringProp("general or news."),
		"max_results":    integerProp("Maximum number of results to return."),
		"include_answer": booleanProp("Whether to include a synthesized answer."),
	}, []string{"query"}),
}

// TavilyExtractDefinition describes tavily_extract.
var TavilyExtractDefinition = ToolDefinition{
	Name:        "tavily_extract",
	Description: "Extract raw content from one or more URLs.",
	InputSchema: schemaObject(map[string]any{
		"urls":           arrayOfStringProp("URLs to extract content from."),
		"extract_depth":  stringProp("basic or advanced."),
		"include_images": booleanProp("Whether to include image URLs."),
	}, []string{"urls"}),
}

// TavilyCrawlDefinition describes tavily_crawl.
var TavilyCrawlDefinition = ToolDefinition{
	Name:        "tavily_crawl",
	Description: "Crawl a site starting from a URL, following internal links.",
	InputSchema: schemaObject(map[string]any{
		"url":       stringProp("Starting URL."),
		"max_depth": integerProp("Maximum link depth to follow."),
		"limit":     integerProp("Maximum number of pages to crawl."),
	}, []string{"url"}),
}

// TavilyMapDefinition describes tavily_map.
var TavilyMapDefinition = ToolDefinition{
	Name:        "tavily_map",
	Description: "Enumerate the URLs reachable from a site.",
	InputSchema: schemaObject(map[string]any{
		"url":       stringProp("Starting URL."),
		"max_depth": integerProp("Maximum link depth to follow."),
	}, []string{"url"}),
}

// TavilyResearchDefinition describes tavily_research. Hidden from
// tools/list when researchEnabled is false.
var TavilyResearchDefinition = ToolDefinition{
	Name:        "tavily_research",
	Description: "Run an asynchronous deep-research job and return its report.",
	InputSchema: schemaObject(map[string]any{
		"query": stringProp("The research question."),
		"model": stringProp("mini or pro."),
	}, []string{"query"}),
}

// BraveWebSearchDefinition describes brave_web_search.
var BraveWebSearchDefinition = ToolDefinition{
	Name:        "brave_web_search",
	Description: "Search the web via the Brave-shaped provider.",
	InputSchema: schemaObject(map[string]any{
		"query":  stringProp("The search query."),
		"count":  integerProp("Number of results to return (default 10)."),
		"offset": integerProp("Pagination offset."),
	}, []string{"query"}),
}

// BraveLocalSearchDefinition describes brave_local_search.
var BraveLocalSearchDefinition = ToolDefinition{
	Name:        "brave_local_search",
	Description: "Search for local businesses and places.",
	InputSchema: schemaObject(map[string]any{
		"query": stringProp("The local search query."),
		"count": integerProp("Number of results to return (default 10)."),
	}, []string{"query"}),
}

// AllDefinitions lists every tool in registration order.
var AllDefinitions = []ToolDefinition{
	TavilySearchDefinition,
	TavilyExtractDefinition,
	TavilyCrawlDefinition,
	TavilyMapDefinition,
	TavilyResearchDefinition,
	BraveWebSearchDefinition,
	BraveLocalSearchDefinition,
}
