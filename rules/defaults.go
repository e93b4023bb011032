// ABOUTME: Default rule book seeded when no rules file exists or it is unreadable
// ABOUTME: English and Arabic phrase lists for the dehydrated vegetable export trade
package rules

import "github.com/harperreed/tradedesk/models"

// Category keys used by the relevance classifier. The product category is
// derived from the relevance whitelist rather than stored here.
const (
	CategoryPrice    = "price"
	CategorySample   = "sample"
	CategorySpecs    = "specs"
	CategoryMOQ      = "moq"
	CategoryQuantity = "quantity"
	CategoryExport   = "export"
	CategoryProduct  = "product"
	CategoryInquiry  = "inquiry"
	CategoryBusiness = "business"
)

// Default returns a fresh copy of the built-in rule book.
func Default() *RuleBook {
	whitelist := []string{
		"dehydrated", "dried", "onion", "garlic", "carrot", "vegetable",
		"powder", "flakes", "granules", "minced", "kibbled", "spinach", "parsley",
		"مجفف", "مجففة", "بصل", "ثوم", "جزر", "خضروات",
	}

	return &RuleBook{
		AIEnabled: true,
		ClassificationThresholds: []Threshold{
			{MinScore: 0, Label: "Not Serious", Icon: "○", Color: "#9E9E9E"},
			{MinScore: 20, Label: "Potential", Icon: "◐", Color: "#FFC107"},
			{MinScore: 60, Label: "Focus", Icon: "◉", Color: "#2196F3"},
			{MinScore: 100, Label: "Serious Buyer", Icon: "★", Color: "#4CAF50"},
		},
		ScoreRules: map[string]ScoreRule{
			models.MessageReply:          {Effect: 0, Enabled: true, Description: "Client replied"},
			models.MessagePriceRequest:   {Effect: 15, Enabled: true, Description: "Client asked for a price or MOQ"},
			models.MessageSamplesRequest: {Effect: 25, Enabled: true, Description: "Client asked for samples"},
			models.MessageSpecsRequest:   {Effect: 10, Enabled: true, Description: "Client asked for specifications"},
			models.MessageVagueReply:     {Effect: -5, Enabled: true, Description: "Short reply with no clear ask"},
			models.MessageLongIgnore:     {Effect: -15, Enabled: true, Description: "No contact for a long period"},
			models.MessageFollowup:       {Effect: 0, Enabled: true, Description: "Operator follow-up"},
			models.MessageNoReply:        {Effect: -10, Enabled: true, Description: "Client did not answer a follow-up"},
			models.MessageMeetingRequest: {Effect: 20, Enabled: true, Description: "Client asked for a call or meeting"},
			models.MessageOrderPlaced:    {Effect: 40, Enabled: true, Description: "Client placed an order"},
			models.MessageNotInterested:  {Effect: -30, Enabled: true, Description: "Client declined"},
			models.MessageOther:          {Effect: 0, Enabled: true, Description: "Anything else"},
		},
		Lexicons: Lexicons{
			Positive: []string{
				"please send", "kindly send", "we are interested", "interested in your",
				"sounds good", "approved", "good quality", "satisfied",
				"مهتم", "ممتاز", "موافق", "يرجى إرسال",
			},
			HighPriority: []string{
				"purchase order", "ready to order", "ready to buy", "place an order",
				"proforma", "confirm the order", "advance payment", "letter of credit",
				"أمر شراء",
			},
			MediumPriority: []string{
				"samples", "specification", "certificate", "packing", "shipment",
				"delivery time", "payment terms",
				"عينات", "مواصفات", "شحن",
			},
			Negative: []string{
				"not interested", "no longer interested", "not needed", "too expensive",
				"unsubscribe", "stop sending", "remove me", "no thanks", "no thank you",
				"found another supplier",
				"غير مهتم", "لا نحتاج",
			},
			Courtesy: []string{
				"thank you", "thanks", "looking forward", "best regards", "kind regards", "appreciate",
				"شكرا", "مع التحية",
			},
			PurchaseIntent: []string{
				"ready to buy", "ready to order", "purchase order", "place an order",
				"proforma invoice", "confirm the order",
			},
			RelevanceWhitelist: whitelist,
			RelevanceRequestTerms: []string{
				"price", "pricing", "quote", "quotation", "sample", "specification", "specs",
				"moq", "minimum order", "catalog",
				"سعر", "الأسعار", "عرض سعر", "عينة", "مواصفات",
			},
			SpamBlacklist: []string{
				"unsubscribe", "discount", "% off", "click here", "shop now",
				"limited-time", "limited time", "newsletter", "webinar", "promo code", "free trial",
			},
			Interest: []string{
				"interested", "looking for", "need", "require", "want to buy", "searching for",
				"نبحث عن", "نحتاج",
			},
			Trade: []string{
				"export", "import", "trade", "commercial", "wholesale", "distributor", "container", "bulk",
				"تصدير", "استيراد",
			},
			Categories: map[string][]string{
				CategoryPrice:    {"price", "pricing", "cost", "quote", "سعر"},
				CategorySample:   {"sample", "عينة", "عينات"},
				CategorySpecs:    {"specification", "specs", "spec sheet", "datasheet", "مواصفات"},
				CategoryMOQ:      {"moq", "minimum order", "الحد الأدنى"},
				CategoryQuantity: {"quantity", "tons", "tonnes", "metric ton", "fcl", "كمية", "طن"},
				CategoryExport:   {"export", "import", "incoterms", "تصدير"},
				CategoryInquiry:  {"inquiry", "enquiry", "request", "interested", "استفسار"},
				CategoryBusiness: {"company", "supplier", "distributor", "wholesale", "importer", "business", "شركة"},
			},
		},
		TrendAnalysisEnabled: true,
		TrendWindow:          5,
	}
}
