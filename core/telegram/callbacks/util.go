package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// dataPrefix marks callback data produced by tele.ReplyMarkup.Data.
const dataPrefix = "\f"

// ParseCallbackData splits callback data into its unique key and payload.
// A set cb.Unique wins over the key encoded in Data.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(cb.Data, dataPrefix)
	parts := strings.SplitN(raw, "|", 2)
	unique := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	if cb.Unique != "" {
		unique = cb.Unique
	}
	return unique, payload
}

// CallbackKey returns the unique key of the callback in c.
func CallbackKey(c tele.Context) string {
	k, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the payload after '|' of the callback in c.
func CallbackPayload(c tele.Context) string {
	_, payload := ParseCallbackData(c.Callback())
	return payload
}
