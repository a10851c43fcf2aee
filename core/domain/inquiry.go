package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category is the fixed inquiry taxonomy.
type Category string

const (
	CategoryTechnicalSupport Category = "technical_support"
	CategoryBilling          Category = "billing"
	CategorySales            Category = "sales"
	CategoryHR               Category = "hr"
	CategoryLegal            Category = "legal"
	CategoryProductFeedback  Category = "product_feedback"
)

// Categories lists every category in declaration order. Tie-breaks between
// equal classifier scores resolve to the earlier entry.
var Categories = []Category{
	CategoryTechnicalSupport,
	CategoryBilling,
	CategorySales,
	CategoryHR,
	CategoryLegal,
	CategoryProductFeedback,
}

// Sentiment of an inquiry.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Urgency level of an inquiry.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Department an inquiry can be routed to.
type Department string

const (
	DepartmentTechnicalSupport  Department = "technical_support"
	DepartmentFinance           Department = "finance"
	DepartmentSales             Department = "sales"
	DepartmentHR                Department = "hr"
	DepartmentLegal             Department = "legal"
	DepartmentProductManagement Department = "product_management"
	DepartmentEscalation        Department = "escalation"
	DepartmentGeneral           Department = "general"
)

// DepartmentForCategory maps each category to its default department.
// Unknown categories fall through to the general department.
func DepartmentForCategory(c Category) Department {
	switch c {
	case CategoryTechnicalSupport:
		return DepartmentTechnicalSupport
	case CategoryBilling:
		return DepartmentFinance
	case CategorySales:
		return DepartmentSales
	case CategoryHR:
		return DepartmentHR
	case CategoryLegal:
		return DepartmentLegal
	case CategoryProductFeedback:
		return DepartmentProductManagement
	default:
		return DepartmentGeneral
	}
}

// Inquiry is an incoming customer inquiry.
type Inquiry struct {
	ID                 uuid.UUID         `json:"id"`
	Subject            string            `json:"subject"`
	Body               string            `json:"body"`
	SenderEmail        string            `json:"sender_email"`
	SenderName         string            `json:"sender_name,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	ReceivedAt         time.Time         `json:"received_at"`
	Processed          bool              `json:"processed"`
	ProcessedAt        *time.Time        `json:"processed_at,omitempty"`
	ProcessingAttempts int               `json:"processing_attempts"`
	LastError          string            `json:"last_error,omitempty"`
	Poisoned           bool              `json:"poisoned"`
}

// Prediction is the classifier output for one inquiry.
type Prediction struct {
	InquiryID           uuid.UUID `json:"inquiry_id"`
	Category            Category  `json:"category"`
	CategoryConfidence  float64   `json:"category_confidence"`
	Sentiment           Sentiment `json:"sentiment"`
	SentimentConfidence float64   `json:"sentiment_confidence"`
	Urgency             Urgency   `json:"urgency"`
	UrgencyConfidence   float64   `json:"urgency_confidence"`
	ModelIdentifier     string    `json:"model_identifier"`
	ClassifiedAt        time.Time `json:"classified_at"`
}

// RoutingDecision is the routing output for one inquiry.
type RoutingDecision struct {
	InquiryID        uuid.UUID  `json:"inquiry_id"`
	Department       Department `json:"department"`
	Consultant       string     `json:"consultant,omitempty"`
	PriorityScore    int        `json:"priority_score"`
	Escalated        bool       `json:"escalated"`
	ResponseDeadline time.Time  `json:"response_deadline"`
	DecidedAt        time.Time  `json:"decided_at"`
}

// InquiryView combines an inquiry with its recorded results, if any.
type InquiryView struct {
	Inquiry    *Inquiry         `json:"inquiry"`
	Prediction *Prediction      `json:"prediction,omitempty"`
	Routing    *RoutingDecision `json:"routing,omitempty"`
}

// Stats is the reporting projection over a time window.
type Stats struct {
	WindowDays          int                `json:"window_days"`
	Total               int64              `json:"total"`
	Processed           int64              `json:"processed"`
	Poisoned            int64              `json:"poisoned"`
	PerCategoryCounts   map[Category]int64 `json:"per_category_counts"`
	PerDepartmentCounts map[Department]int64 `json:"per_department_counts"`
	EscalationRate      float64            `json:"escalation_rate"`
}
