package columnizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/core-tools/hsu-logreceiver/pkg/errors"
)

// Fragment is one ordered element of a composed pattern.
type Fragment struct {
	Prefix     string
	Expression string
	Suffix     string
	Optional   bool
}

// PatternBuilder composes fragments into a single anchored expression in
// which fragment i is captured by the group named GroupName(i).
type PatternBuilder struct {
	fragments []Fragment
}

func NewPatternBuilder() *PatternBuilder {
	return &PatternBuilder{}
}

// Add appends a fragment and returns the builder.
func (b *PatternBuilder) Add(f Fragment) *PatternBuilder {
	b.fragments = append(b.fragments, f)
	return b
}

// Len returns the number of fragments.
func (b *PatternBuilder) Len() int {
	return len(b.fragments)
}

// GroupName returns the capture group name used for fragment i.
func GroupName(i int) string {
	return fmt.Sprintf("c%d", i)
}

// Pattern renders the composed expression. Prefix and suffix are grouped
// so that an alternation inside them stays local to its column.
func (b *PatternBuilder) Pattern() string {
	var sb strings.Builder
	sb.WriteString("^")
	for i, f := range b.fragments {
		column := nonCapturing(f.Prefix) +
			fmt.Sprintf("(?P<%s>%s)", GroupName(i), f.Expression) +
			nonCapturing(f.Suffix)
		if f.Optional {
			sb.WriteString("(?:")
			sb.WriteString(column)
			sb.WriteString(")?")
			continue
		}
		sb.WriteString(column)
	}
	sb.WriteString("$")
	return sb.String()
}

func nonCapturing(fragment string) string {
	if fragment == "" {
		return ""
	}
	return "(?:" + fragment + ")"
}

// Compile compiles the composed pattern and returns the regexp together
// with the submatch index of each fragment's group.
func (b *PatternBuilder) Compile() (*CompiledPattern, error) {
	if len(b.fragments) == 0 {
		return nil, errors.NewValidationError("pattern has no fragments", nil)
	}
	pattern := b.Pattern()
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.NewValidationError("composed pattern does not compile", err).
			WithContext("pattern", pattern)
	}
	groups := make([]int, len(b.fragments))
	for i := range b.fragments {
		groups[i] = re.SubexpIndex(GroupName(i))
		if groups[i] < 0 {
			return nil, errors.NewValidationError(fmt.Sprintf("group %s missing from composed pattern", GroupName(i)), nil).
				WithContext("pattern", pattern)
		}
	}
	return &CompiledPattern{re: re, groups: groups}, nil
}

// CompiledPattern is immutable and safe for concurrent use.
type CompiledPattern struct {
	re     *regexp.Regexp
	groups []int
}

// String returns the source expression.
func (p *CompiledPattern) String() string {
	return p.re.String()
}

// Match returns one value per fragment. Absent optional fragments yield "".
func (p *CompiledPattern) Match(record string) ([]string, bool) {
	sub := p.re.FindStringSubmatch(record)
	if sub == nil {
		return nil, false
	}
	values := make([]string, len(p.groups))
	for i, g := range p.groups {
		values[i] = sub[g]
	}
	return values, true
}
