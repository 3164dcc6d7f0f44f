package filters

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdelaire/openwa/core/model"
)

// Message kind filters.
var (
	Text        = Type(model.TypeText)
	Image       = Type(model.TypeImage)
	Video       = Type(model.TypeVideo)
	Audio       = Type(model.TypeAudio)
	Document    = Type(model.TypeDocument)
	Sticker     = Type(model.TypeSticker)
	Location    = Type(model.TypeLocation)
	Contacts    = Type(model.TypeContacts)
	Interactive = Type(model.TypeInteractive)
	Reaction    = Type(model.TypeReaction)
	Button      = Type(model.TypeButton)
	Order       = Type(model.TypeOrder)
	System      = Type(model.TypeSystem)
	Unsupported = Type(model.TypeUnsupported)

	// Media matches image, video, audio, document and sticker messages.
	Media = New("MEDIA", func(m *model.Message) bool { return model.IsMedia(m.Type) })

	// AllMessages matches every message.
	AllMessages = New("ALL", func(*model.Message) bool { return true })

	// AnyCommand matches text messages that look like a command: the
	// trimmed body is "/" followed by a non-space character. Combine as
	// Not(AnyCommand) to keep commands out of generic text handlers.
	AnyCommand = New("ANY_COMMAND", func(m *model.Message) bool {
		_, ok := commandName(m)
		return ok
	})

	// Replying matches messages that quote or reply to an earlier message.
	Replying = New("REPLYING", func(m *model.Message) bool {
		return m.Context != nil && m.Context.ID != ""
	})
)

// Type matches messages of kind t.
func Type(t model.MessageType) Filter {
	return New(strings.ToUpper(string(t)), func(m *model.Message) bool {
		return m.Type == t
	})
}

// TextEquals matches text messages whose body equals one of values exactly.
func TextEquals(values ...string) Filter {
	return New(fmt.Sprintf("TextEquals%q", values), func(m *model.Message) bool {
		return m.Type == model.TypeText && m.Text != nil && slices.Contains(values, m.Text.Body)
	})
}

// Contains matches text messages whose body contains sub.
func Contains(sub string) Filter {
	return New(fmt.Sprintf("Contains(%q)", sub), func(m *model.Message) bool {
		return m.Type == model.TypeText && m.Text != nil && strings.Contains(m.Text.Body, sub)
	})
}

// Regex matches text messages whose body matches pattern. An invalid
// pattern is reported here, never at evaluation time.
func Regex(pattern string) (Filter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("filters: compile regex %q: %w", pattern, err)
	}
	return New(fmt.Sprintf("Regex(%q)", pattern), func(m *model.Message) bool {
		return m.Type == model.TypeText && m.Text != nil && re.MatchString(m.Text.Body)
	}), nil
}

// MustRegex is like Regex but panics on an invalid pattern.
func MustRegex(pattern string) Filter {
	f, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

// Command matches "/name", optionally followed by whitespace and arguments,
// for any of the given names. Names compare case-insensitively, so
// Command("order") matches "/Order 12" but not "/orderextra".
func Command(names ...string) Filter {
	want := make([]string, 0, len(names))
	for _, n := range names {
		want = append(want, strings.TrimPrefix(strings.TrimSpace(n), "/"))
	}
	return New(fmt.Sprintf("Command%q", want), func(m *model.Message) bool {
		name, ok := commandName(m)
		if !ok {
			return false
		}
		for _, w := range want {
			if strings.EqualFold(name, w) {
				return true
			}
		}
		return false
	})
}

// From matches messages sent by one of the given wa_ids.
func From(ids ...string) Filter {
	return New(fmt.Sprintf("From%q", ids), func(m *model.Message) bool {
		return slices.Contains(ids, m.From)
	})
}

// InteractiveKind matches interactive replies of kind t.
func InteractiveKind(t model.InteractiveType) Filter {
	return New("Interactive("+string(t)+")", func(m *model.Message) bool {
		return m.Type == model.TypeInteractive && m.Interactive != nil && m.Interactive.Type == t
	})
}

// ButtonReply matches reply-button presses. With no ids any button matches.
func ButtonReply(ids ...string) Filter {
	return New(fmt.Sprintf("ButtonReply%q", ids), func(m *model.Message) bool {
		if m.Interactive == nil || m.Interactive.ButtonReply == nil {
			return false
		}
		return len(ids) == 0 || slices.Contains(ids, m.Interactive.ButtonReply.ID)
	})
}

// ListReply matches list row selections. With no ids any row matches.
func ListReply(ids ...string) Filter {
	return New(fmt.Sprintf("ListReply%q", ids), func(m *model.Message) bool {
		if m.Interactive == nil || m.Interactive.ListReply == nil {
			return false
		}
		return len(ids) == 0 || slices.Contains(ids, m.Interactive.ListReply.ID)
	})
}

// commandName extracts the command token from a text message body.
func commandName(m *model.Message) (string, bool) {
	if m.Type != model.TypeText || m.Text == nil {
		return "", false
	}
	body := strings.TrimSpace(m.Text.Body)
	rest, ok := strings.CutPrefix(body, "/")
	if !ok || rest == "" {
		return "", false
	}
	if r, _ := utf8.DecodeRuneInString(rest); unicode.IsSpace(r) {
		return "", false
	}
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		rest = rest[:i]
	}
	return rest, true
}

// CommandArgs returns the text following the command token, trimmed.
// It returns "" for messages that are not commands.
func CommandArgs(m *model.Message) string {
	if _, ok := commandName(m); !ok {
		return ""
	}
	body := strings.TrimSpace(m.Text.Body)
	i := strings.IndexFunc(body, unicode.IsSpace)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(body[i:])
}
