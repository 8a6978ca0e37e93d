package diskarray

// SpillDir returns the spill directory of c, empty until the first spill.
func SpillDir[T any](c *Cache[T]) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spill == nil {
		return ""
	}
	return c.spill.dir
}
