// internal/command/parser.go
package command

import "strings"

// ParsedCommand is the structured form of one command line.
type ParsedCommand struct {
	Method string
	Path   string
	Params map[string]string // flat key/value pairs, dots encode nesting
	Valid  bool
}

// ParseCommandLine converts wire text into a ParsedCommand. The optional
// framing prefix ("> " or ">") is stripped, the first space separates the
// method, and the first colon separates the path from a comma-separated
// parameter list. Values may be double-quoted to carry commas, spaces or
// equals signs. Valid is set only once the method/path grammar is satisfied.
func ParseCommandLine(input string) ParsedCommand {
	cmd := ParsedCommand{Params: map[string]string{}}

	text := strings.TrimRight(input, "\r\n")
	if strings.HasPrefix(text, "> ") {
		text = text[2:]
	} else if strings.HasPrefix(text, ">") {
		text = text[1:]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return cmd
	}

	method := text
	rest := ""
	if idx := strings.IndexByte(text, ' '); idx >= 0 {
		method = text[:idx]
		rest = strings.TrimSpace(text[idx+1:])
	}
	cmd.Method = method

	switch method {
	case "GET", "SET", "LIST":
	default:
		return cmd
	}

	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		cmd.Path = strings.TrimSpace(rest[:idx])
		parseParams(rest[idx+1:], cmd.Params)
	} else {
		cmd.Path = rest
	}

	// LIST without a path enumerates the whole registry.
	if cmd.Path == "" {
		if method != "LIST" {
			return cmd
		}
		cmd.Path = "api"
	}

	cmd.Valid = true
	return cmd
}

// parseParams splits a comma-separated key=value list, honoring double
// quotes so quoted values may contain commas and equals signs.
func parseParams(text string, params map[string]string) {
	start := 0
	inQuotes := false
	for i := 0; i <= len(text); i++ {
		atEnd := i == len(text)
		if !atEnd {
			switch text[i] {
			case '"':
				inQuotes = !inQuotes
				continue
			case ',':
				if inQuotes {
					continue
				}
			default:
				continue
			}
		}
		addParam(text[start:i], params)
		start = i + 1
	}
}

func addParam(pair string, params map[string]string) {
	pair = strings.TrimSpace(pair)
	if pair == "" {
		return
	}
	idx := strings.IndexByte(pair, '=')
	if idx < 0 {
		return
	}
	key := strings.TrimSpace(pair[:idx])
	value := strings.TrimSpace(pair[idx+1:])
	if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) >= 2 {
		value = value[1 : len(value)-1]
	}
	if key != "" {
		params[key] = value
	}
}

// NestParams converts flat dot-separated keys into the registry's nested
// argument representation: "ap.enabled" becomes {"ap": {"enabled": ...}}.
func NestParams(flat map[string]string) map[string]interface{} {
	if len(flat) == 0 {
		return nil
	}
	nested := make(map[string]interface{})
	for key, value := range flat {
		current := nested
		segments := strings.Split(key, ".")
		for _, segment := range segments[:len(segments)-1] {
			child, ok := current[segment].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				current[segment] = child
			}
			current = child
		}
		current[segments[len(segments)-1]] = value
	}
	return nested
}
