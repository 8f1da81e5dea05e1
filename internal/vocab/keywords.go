package vocab

import "strconv"

// Reserved token ids.
const (
	PadToken = "[PAD]"
	UnkToken = "[UNK]"
	PadID    = 0
	UnkID    = 1
)

// Category is a named group of keywords that SMS messages of one kind tend to share.
type Category struct {
	Name  string
	Words []string
}

// Categories lists the fixed keyword groups in vocabulary order. Numerals
// 0..99 follow them; see FixedTokens.
var Categories = []Category{
	{Name: "special_tokens", Words: []string{PadToken, UnkToken}},
	{Name: "otp", Words: []string{
		"otp", "code", "verify", "verification", "authentication", "pin",
		"passcode", "confirm", "security", "temporary",
	}},
	{Name: "banking", Words: []string{
		"bank", "account", "balance", "credited", "debited",
		"transaction", "atm", "withdrawal", "deposit", "statement",
	}},
	{Name: "finance", Words: []string{
		"payment", "invoice", "due", "bill", "loan", "emi",
		"insurance", "credit", "card", "stock", "investment",
	}},
	{Name: "offers", Words: []string{
		"offer", "discount", "sale", "deal", "save", "flat",
		"off", "special", "price", "limited", "hurry",
	}},
	{Name: "coupons", Words: []string{
		"coupon", "promo", "voucher", "redeem", "cashback",
		"reward", "points", "gift",
	}},
	{Name: "common", Words: []string{
		"dear", "customer", "your", "the", "is", "for", "and",
		"to", "from", "on", "at", "in", "with", "by", "as",
		"this", "that", "have", "has", "will", "can", "get",
		"now", "today", "call", "visit", "click", "reply",
		"message", "sms", "alert", "notification", "update",
	}},
}

// NumeralCount is how many decimal numerals ("0".."99") follow the keyword categories.
const NumeralCount = 100

// FixedTokens returns the keyword categories followed by the numerals, in order.
func FixedTokens() []string {
	var tokens []string
	for _, c := range Categories {
		tokens = append(tokens, c.Words...)
	}
	for i := 0; i < NumeralCount; i++ {
		tokens = append(tokens, strconv.Itoa(i))
	}
	return tokens
}
