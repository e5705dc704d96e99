package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. Extraction instruction profiles are fixed text reused on every
// call, so caching them cuts the repeated prompt cost to the cache-read rate.
func BuildCachedSystemBlocks(text string, ttl string) []SystemBlock {
	if ttl == "" {
		ttl = "5m"
	}
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}
