package funpay

import "regexp"

// MessageKind is a best-effort classification of a message. It is determined
// by matching the message text against known FunPay system-message patterns,
// so it is a heuristic, not a parse result: a user can spoof a system message
// by writing text that matches one of the patterns. When it matters, check
// AuthorID == 0 as well.
type MessageKind int

const (
	KindPlain MessageKind = iota
	KindOrderPurchased
	KindOrderConfirmed
	KindNewFeedback
	KindNewFeedbackAnswer
	KindFeedbackChanged
	KindFeedbackDeleted
	KindRefund
	KindFeedbackAnswerChanged
	KindFeedbackAnswerDeleted
	KindOrderConfirmedByAdmin
	KindPartialRefund
	KindOrderReopened
	KindRefundByAdmin
	KindDiscord
	KindScamWarning
)

func (k MessageKind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindOrderPurchased:
		return "order_purchased"
	case KindOrderConfirmed:
		return "order_confirmed"
	case KindNewFeedback:
		return "new_feedback"
	case KindNewFeedbackAnswer:
		return "new_feedback_answer"
	case KindFeedbackChanged:
		return "feedback_changed"
	case KindFeedbackDeleted:
		return "feedback_deleted"
	case KindRefund:
		return "refund"
	case KindFeedbackAnswerChanged:
		return "feedback_answer_changed"
	case KindFeedbackAnswerDeleted:
		return "feedback_answer_deleted"
	case KindOrderConfirmedByAdmin:
		return "order_confirmed_by_admin"
	case KindPartialRefund:
		return "partial_refund"
	case KindOrderReopened:
		return "order_reopened"
	case KindRefundByAdmin:
		return "refund_by_admin"
	case KindDiscord:
		return "discord"
	case KindScamWarning:
		return "scam_warning"
	}
	return "unknown"
}

// System reports whether the kind corresponds to a FunPay system message.
func (k MessageKind) System() bool { return k != KindPlain }

const (
	discordNotice = "Вы можете перейти в Discord. Внимание: общение за пределами сервера FunPay считается нарушением правил."
	scamWarning   = "Не совершайте сделок за пределами FunPay и не переходите по сторонним ссылкам: это небезопасно."
)

const user = `[a-zA-Z0-9а-яА-ЯёЁ_-]+`

var (
	orderIDRe         = regexp.MustCompile(`#[A-Z0-9]{8}`)
	orderPurchasedRe  = regexp.MustCompile(`Покупатель ` + user + ` оплатил заказ #[A-Z0-9]{8}\.`)
	orderPurchased2Re = regexp.MustCompile(user + `, не забудьте потом нажать кнопку «Подтвердить выполнение заказа»`)
)

// systemPatterns is evaluated top to bottom, first match wins. The order
// reflects empirical message frequency, not pattern specificity, and is
// locked by tests: do not reorder.
var systemPatterns = []struct {
	kind MessageKind
	re   *regexp.Regexp
}{
	{KindOrderConfirmed, regexp.MustCompile(`Покупатель ` + user + ` подтвердил успешное выполнение заказа #[A-Z0-9]{8}`)},
	{KindNewFeedback, regexp.MustCompile(`Покупатель ` + user + ` написал отзыв к заказу #[A-Z0-9]{8}\.`)},
	{KindNewFeedbackAnswer, regexp.MustCompile(`Продавец ` + user + ` ответил на отзыв к заказу #[A-Z0-9]{8}\.`)},
	{KindFeedbackChanged, regexp.MustCompile(`Покупатель ` + user + ` изменил отзыв к заказу #[A-Z0-9]{8}\.`)},
	{KindFeedbackDeleted, regexp.MustCompile(`Покупатель ` + user + ` удалил отзыв к заказу #[A-Z0-9]{8}\.`)},
	{KindRefund, regexp.MustCompile(`Продавец ` + user + ` вернул деньги покупателю ` + user + ` по заказу #[A-Z0-9]{8}\.`)},
	{KindFeedbackAnswerChanged, regexp.MustCompile(`Продавец ` + user + ` изменил ответ на отзыв к заказу #[A-Z0-9]{8}\.`)},
	{KindFeedbackAnswerDeleted, regexp.MustCompile(`Продавец ` + user + ` удалил ответ на отзыв к заказу #[A-Z0-9]{8}\.`)},
	{KindOrderConfirmedByAdmin, regexp.MustCompile(`Администратор ` + user + ` подтвердил успешное выполнение заказа #[A-Z0-9]{8}`)},
	{KindPartialRefund, regexp.MustCompile(`Часть средств по заказу #[A-Z0-9]{8} возвращена покупателю`)},
	{KindOrderReopened, regexp.MustCompile(`Заказ #[A-Z0-9]{8} открыт повторно`)},
	{KindRefundByAdmin, regexp.MustCompile(`Администратор ` + user + ` вернул деньги покупателю ` + user + ` по заказу #[A-Z0-9]{8}\.`)},
}

// ClassifyMessage determines the kind of a message from its text. Stateless
// and deterministic: the same text always yields the same kind.
func ClassifyMessage(text string) MessageKind {
	if text == "" {
		return KindPlain
	}
	if text == discordNotice {
		return KindDiscord
	}
	if text == scamWarning {
		return KindScamWarning
	}
	if orderPurchasedRe.MatchString(text) && orderPurchased2Re.MatchString(text) {
		return KindOrderPurchased
	}
	if !orderIDRe.MatchString(text) {
		return KindPlain
	}
	for _, p := range systemPatterns {
		if p.re.MatchString(text) {
			return p.kind
		}
	}
	return KindPlain
}

// OrderIDFromMessage extracts the first order id mentioned in a system
// message, without the leading "#". Empty string when none is present.
func OrderIDFromMessage(text string) string {
	id := orderIDRe.FindString(text)
	if id == "" {
		return ""
	}
	return id[1:]
}
