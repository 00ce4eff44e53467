// Copyright 2025 James Ross
package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPatternIsCaseSensitive(t *testing.T) {
	assert.True(t, matchPattern("com.x.Tool", "com.x.Tool"))
	assert.False(t, matchPattern("com.x.tool", "com.x.Tool"))
	assert.False(t, matchPattern("shell-*", "Shell-exec"))
}

func TestMatchDomainPatternIsCaseInsensitive(t *testing.T) {
	assert.True(t, matchDomainPattern("Blocked.COM", "blocked.com"))
	assert.True(t, matchDomainPattern("blocked.com", "API.Blocked.Com"))
}

func TestMatchDomainSubdomainsAlwaysMatch(t *testing.T) {
	assert.True(t, matchDomainPattern("blocked.com", "blocked.com"))
	assert.True(t, matchDomainPattern("blocked.com", "api.blocked.com"))
	assert.True(t, matchDomainPattern("blocked.com", "deep.api.blocked.com"))
	assert.False(t, matchDomainPattern("blocked.com", "notblocked.com"))
	assert.False(t, matchDomainPattern("blocked.com", "blocked.com.evil.net"))
}

func TestMatchDomainGlobPatterns(t *testing.T) {
	assert.True(t, matchDomainPattern("*.example.com", "api.example.com"))
	assert.False(t, matchDomainPattern("*.example.com", "example.com"))
	assert.True(t, matchDomainPattern("host-?", "host-a"))
}
