package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Separator is the topic path separator.
const Separator = "/"

// Shadow document keys. A shadow update payload has the shape
// {"state": {"reported"|"desired": {field: value}}}.
const (
	StateKey = "state"
	Reported = "reported"
	Desired  = "desired"
)

// thingShadowTemplate is the fixed state-update topic for a named thing.
const thingShadowTemplate = "$aws/things/%s/shadow/update"

// Invocation is a command extracted from a concrete topic relative to a
// subscribed topic pattern.
type Invocation struct {
	// Command is the verb segment following the matched pattern prefix.
	Command string

	// Argument is the segment following the command, or empty when the
	// topic carried no argument.
	Argument string
}

// Tokenize splits a hierarchical path into the ordered sequence of its
// prefix-stripped suffixes: one candidate per trailing truncation, from the
// full path down to the empty prefix.
//
// An N-segment path yields N+1 candidates, strictly decreasing in
// specificity, the last being the empty string. The empty path yields a
// single empty-string candidate.
//
// Example:
//
//	Tokenize("home/lr", "/") // ["home/lr", "home", ""]
func Tokenize(path, sep string) []string {
	return tokenize(path, sep, "", false)
}

// TokenizeSuffix is Tokenize with a suffix appended to every candidate,
// separated by sep. The empty-prefix candidate is the bare suffix (no
// leading separator).
//
// Example:
//
//	TokenizeSuffix("a/b", "/", "cmd") // ["a/b/cmd", "a/cmd", "cmd"]
func TokenizeSuffix(path, sep, suffix string) []string {
	return tokenize(path, sep, suffix, true)
}

func tokenize(path, sep, suffix string, hasSuffix bool) []string {
	if path == "" {
		if hasSuffix {
			return []string{suffix}
		}
		return []string{""}
	}

	segments := strings.Split(path, sep)
	candidates := make([]string, 0, len(segments)+1)
	for i := len(segments); i >= 0; i-- {
		prefix := strings.Join(segments[:i], sep)
		switch {
		case !hasSuffix:
			candidates = append(candidates, prefix)
		case prefix == "":
			candidates = append(candidates, suffix)
		default:
			candidates = append(candidates, prefix+sep+suffix)
		}
	}
	return candidates
}

// Match reports whether topic is a command invocation of the subscribed
// pattern, and extracts the command verb and optional argument.
//
// The matcher is a two-pass reconstruct-and-compare: candidate prefixes of
// the pattern are tried in decreasing specificity; for each prefix the topic
// starts with, the remainder supplies the verb and argument, and the match
// holds only if re-appending them to the pattern's suffix chain reproduces
// the topic exactly. This tolerates subscription prefixes that themselves
// contain separators without a wildcard grammar, and admits no partial
// matches.
//
// The empty prefix is never used as a match candidate: it prefixes every
// topic and would make every topic a command of every pattern.
//
// A topic equal to the pattern itself, a topic with no recognisable verb,
// and a topic whose reconstruction fails all report no match; callers treat
// these uniformly as "no command present".
//
// Example:
//
//	Match("home/lr", "home/lr/set/75") // Invocation{"set", "75"}, true
//	Match("home/lr", "unrelated/topic") // Invocation{}, false
func Match(pattern, topic string) (Invocation, bool) {
	return MatchSep(pattern, topic, Separator)
}

// MatchSep is Match with an explicit separator.
func MatchSep(pattern, topic, sep string) (Invocation, bool) {
	// The subscription filter covers the bare pattern topic itself; without
	// this guard a shorter prefix would reinterpret the pattern's trailing
	// segments as a verb ("home/lr" on pattern "home/lr" would dispatch a
	// phantom "lr" via prefix "home").
	if topic == pattern {
		return Invocation{}, false
	}

	for _, prefix := range Tokenize(pattern, sep) {
		if prefix == "" || !strings.HasPrefix(topic, prefix) {
			continue
		}

		remainder := strings.Replace(topic, prefix, "", 1)
		parts := splitNonEmpty(remainder, sep)
		if len(parts) == 0 {
			// The topic names the subscription itself; no command.
			continue
		}

		inv := Invocation{Command: parts[0]}
		suffix := parts[0]
		if len(parts) > 1 {
			inv.Argument = parts[1]
			suffix = parts[0] + sep + parts[1]
		}

		for _, candidate := range TokenizeSuffix(pattern, sep, suffix) {
			if topic == candidate {
				return inv, true
			}
		}
	}

	return Invocation{}, false
}

// splitNonEmpty splits s on sep and drops empty segments.
func splitNonEmpty(s, sep string) []string {
	var parts []string
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// CommandWildcard returns the subscription filter covering all command
// invocations of a pattern.
//
// Example: CommandWildcard("home/lr") returns "home/lr/#".
func CommandWildcard(pattern string) string {
	return pattern + Separator + "#"
}

// ThingShadowUpdate returns the state-update topic for a named thing.
//
// Example: $aws/things/porch-cam/shadow/update
func ThingShadowUpdate(thing string) string {
	return fmt.Sprintf(thingShadowTemplate, thing)
}

// ShadowPayload builds a shadow update payload for the given target
// ("reported" or "desired") and document.
//
// Example:
//
//	ShadowPayload(mqtt.Reported, map[string]any{"supervised": "cam (RUNNING)"})
//	// {"state":{"reported":{"supervised":"cam (RUNNING)"}}}
func ShadowPayload(target string, doc map[string]any) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		StateKey: map[string]any{target: doc},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding shadow payload: %w", err)
	}
	return payload, nil
}
