package cel

// FilterExpressionExamples are rules the rule filter accepts. A rule that
// evaluates to true marks the message as spam.
var FilterExpressionExamples = map[string]string{
	"keyword":          `content.contains("free loan")`,
	"case_insensitive": `content.lowerAscii().contains("casino")`,
	"regex":            `content.matches("https?://bit\\.ly/[A-Za-z0-9]+")`,
	"source_prefix":    `source.startsWith("070")`,
	"callback_differs": `callback != "" && callback != source`,
	"in_list":          `source in ["0101111", "0102222"]`,
	"mms_only":         `message_type == 2 && media_count > 0`,
	"customer_blocks":  `customer.spam_block == 1 && content.size() > 0`,
	"combined":         `customer.service_type == 3 && (subject.contains("[AD]") || content.contains("(AD)"))`,
	"has_customer_key": `has(customer.mdn) && customer.mdn == destination`,
}
