package visibility

type fieldScope struct {
	fieldID     string
	projectID   string
	issueTypeID string
}

// ScopeCache memoises Checker answers for the duration of one request.
// It is unbounded and not safe for concurrent use: create one per collector
// and drop it when the request ends.
type ScopeCache struct {
	checker Checker
	entries map[fieldScope]bool
	hits    int
	misses  int
}

func NewScopeCache(checker Checker) *ScopeCache {
	return &ScopeCache{
		checker: checker,
		entries: make(map[fieldScope]bool),
	}
}

func (c *ScopeCache) Visible(fieldID, projectID, issueTypeID string) bool {
	key := fieldScope{fieldID, projectID, issueTypeID}
	if visible, ok := c.entries[key]; ok {
		c.hits++
		return visible
	}
	c.misses++
	visible := c.checker.Visible(fieldID, projectID, issueTypeID)
	c.entries[key] = visible
	return visible
}

// Stats returns the number of answers served from and added to the cache.
func (c *ScopeCache) Stats() (hits, misses int) {
	return c.hits, c.misses
}

func (c *ScopeCache) Len() int {
	return len(c.entries)
}
