package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/directory"
	"github.com/GreenGhost-bit/Blockvest-Social-sub002/internal/ledger"
)

// snapshot carries everything the factor scorers read, gathered up front so
// scoring itself is pure and needs no further queries.
type snapshot struct {
	Borrower            *directory.User
	Investment          *ledger.Investment
	Documents           []*directory.Document
	BorrowerInvestments []*ledger.Investment
	InvestorHistory     []*ledger.Investment
	Now                 time.Time
}

// categoryFactors maps each category to the factor names that feed it.
var categoryFactors = map[string][]string{
	CategoryCreditworthiness:     {"reputation_score", "verification_status", "previous_defaults"},
	CategoryFinancialStability:   {"investment_amount_vs_history", "debt_to_income_ratio", "financial_documents_quality"},
	CategoryReputationHistory:    {"completed_investments_ratio", "time_on_platform", "investor_activity"},
	CategoryInvestmentPurpose:    {"purpose_clarity", "purpose_risk_category"},
	CategoryDocumentationQuality: {"document_completeness", "document_authenticity", "document_recency"},
	CategoryPlatformBehavior:     {"mfa_enabled", "communication_responsiveness", "profile_completeness"},
	CategoryExternalValidation:   {"social_validation", "external_credit_check"},
}

// purposeRiskScores rates investment purposes by historical default risk.
var purposeRiskScores = map[string]float64{
	"Education":          90,
	"Medical":            85,
	"Home Improvement":   80,
	"Business":           70,
	"Debt Consolidation": 60,
	"Investment":         50,
	"Travel":             40,
	"Other":              30,
}

// computeFactors evaluates all 18 risk factors from the snapshot.
// Every score is clamped to [0,100].
func computeFactors(s *snapshot) []Factor {
	var factors []Factor

	// Creditworthiness
	repScore := clampScore(float64(s.Borrower.ReputationScore) / 10000 * 100)
	factors = append(factors, Factor{
		Factor:    "reputation_score",
		Value:     s.Borrower.ReputationScore,
		Weight:    0.4,
		Score:     repScore,
		Reasoning: fmt.Sprintf("Borrower has a reputation score of %d/10000", s.Borrower.ReputationScore),
	})

	verified := s.Borrower.Verified()
	verificationScore := 20.0
	if verified {
		verificationScore = 100
	}
	factors = append(factors, Factor{
		Factor:    "verification_status",
		Value:     verified,
		Weight:    0.3,
		Score:     verificationScore,
		Reasoning: fmt.Sprintf("Borrower %s verified", isOrIsNot(verified)),
	})

	defaults := countByStatus(s.BorrowerInvestments, ledger.StatusDefaulted)
	factors = append(factors, Factor{
		Factor:    "previous_defaults",
		Value:     defaults,
		Weight:    0.3,
		Score:     clampScore(100 - float64(defaults)*25),
		Reasoning: fmt.Sprintf("%d previous defaults found", defaults),
	})

	// Financial stability
	factors = append(factors, Factor{
		Factor:    "investment_amount_vs_history",
		Value:     s.Investment.Amount,
		Weight:    0.4,
		Score:     assessInvestmentAmount(s.Investment.Amount, s.BorrowerInvestments),
		Reasoning: "Investment amount relative to borrower history",
	})

	activeDebt := sumByStatus(s.BorrowerInvestments, ledger.StatusActive)
	factors = append(factors, Factor{
		Factor:    "debt_to_income_ratio",
		Value:     activeDebt,
		Weight:    0.3,
		Score:     assessDebtLoad(activeDebt),
		Reasoning: "Estimated debt-to-income based on platform activity",
	})

	financialDocs := countFinancialDocs(s.Documents)
	factors = append(factors, Factor{
		Factor:    "financial_documents_quality",
		Value:     financialDocs,
		Weight:    0.3,
		Score:     clampScore(float64(financialDocs) * 40),
		Reasoning: fmt.Sprintf("%d verified financial documents", financialDocs),
	})

	// Reputation history
	completed := countByStatus(s.BorrowerInvestments, ledger.StatusCompleted)
	completionRatio := float64(completed) / math.Max(1, float64(len(s.BorrowerInvestments)))
	factors = append(factors, Factor{
		Factor:    "completed_investments_ratio",
		Value:     completionRatio,
		Weight:    0.5,
		Score:     clampScore(completionRatio * 100),
		Reasoning: fmt.Sprintf("%d%% completion rate", int(math.Round(completionRatio*100))),
	})

	onPlatform := s.Now.Sub(s.Borrower.JoinedAt)
	factors = append(factors, Factor{
		Factor:    "time_on_platform",
		Value:     onPlatform.Milliseconds(),
		Weight:    0.3,
		Score:     assessTimeOnPlatform(onPlatform),
		Reasoning: fmt.Sprintf("%d days on platform", int(onPlatform.Hours()/24)),
	})

	factors = append(factors, Factor{
		Factor:    "investor_activity",
		Value:     len(s.InvestorHistory),
		Weight:    0.2,
		Score:     clampScore(float64(len(s.InvestorHistory)) * 20),
		Reasoning: fmt.Sprintf("Has invested in %d other opportunities", len(s.InvestorHistory)),
	})

	// Investment purpose
	factors = append(factors, Factor{
		Factor:    "purpose_clarity",
		Value:     len(s.Investment.Description),
		Weight:    0.4,
		Score:     assessPurposeClarity(s.Investment.Purpose, s.Investment.Description),
		Reasoning: "Assessment of investment purpose clarity and detail",
	})

	factors = append(factors, Factor{
		Factor:    "purpose_risk_category",
		Value:     s.Investment.Purpose,
		Weight:    0.6,
		Score:     assessPurposeRisk(s.Investment.Purpose),
		Reasoning: fmt.Sprintf("Investment purpose: %s", s.Investment.Purpose),
	})

	// Documentation quality
	verifiedDocs := countVerifiedDocs(s.Documents)
	factors = append(factors, Factor{
		Factor:    "document_completeness",
		Value:     len(s.Documents),
		Weight:    0.5,
		Score:     clampScore(float64(verifiedDocs) * 25),
		Reasoning: fmt.Sprintf("%d verified documents uploaded", verifiedDocs),
	})

	factors = append(factors, Factor{
		Factor:    "document_authenticity",
		Value:     countAuthenticDocs(s.Documents),
		Weight:    0.3,
		Score:     assessDocumentAuthenticity(s.Documents),
		Reasoning: "Document authenticity and security check results",
	})

	factors = append(factors, Factor{
		Factor:    "document_recency",
		Value:     avgDocumentAge(s.Documents, s.Now).Milliseconds(),
		Weight:    0.2,
		Score:     assessDocumentRecency(s.Documents, s.Now),
		Reasoning: "Recency of uploaded documents",
	})

	// Platform behavior
	mfaScore := 30.0
	if s.Borrower.MFAEnabled {
		mfaScore = 100
	}
	factors = append(factors, Factor{
		Factor:    "mfa_enabled",
		Value:     s.Borrower.MFAEnabled,
		Weight:    0.4,
		Score:     mfaScore,
		Reasoning: fmt.Sprintf("Multi-factor authentication %s", enabledOrDisabled(s.Borrower.MFAEnabled)),
	})

	factors = append(factors, Factor{
		Factor:    "communication_responsiveness",
		Value:     communicationScore,
		Weight:    0.3,
		Score:     communicationScore,
		Reasoning: "Communication patterns and responsiveness",
	})

	profileScore := profileCompleteness(s.Borrower)
	factors = append(factors, Factor{
		Factor:    "profile_completeness",
		Value:     profileScore,
		Weight:    0.3,
		Score:     profileScore,
		Reasoning: "Completeness of user profile information",
	})

	// External validation — neutral placeholders until external feeds land
	factors = append(factors, Factor{
		Factor:    "social_validation",
		Value:     0,
		Weight:    0.6,
		Score:     50,
		Reasoning: "Social validation metrics (future implementation)",
	})
	factors = append(factors, Factor{
		Factor:    "external_credit_check",
		Value:     0,
		Weight:    0.4,
		Score:     50,
		Reasoning: "External credit bureau check (future implementation)",
	})

	return factors
}

// communicationScore is a fixed placeholder until message-response analysis
// is wired in.
const communicationScore = 75.0

// scoreCategories rolls factors up into per-category weighted averages.
func scoreCategories(factors []Factor) map[string]CategoryScore {
	byName := make(map[string]Factor, len(factors))
	for _, f := range factors {
		byName[f.Factor] = f
	}

	result := make(map[string]CategoryScore, len(categoryFactors))
	for category, names := range categoryFactors {
		var weightedSum, totalWeight float64
		for _, name := range names {
			f, ok := byName[name]
			if !ok {
				continue
			}
			weightedSum += f.Score * f.Weight
			totalWeight += f.Weight
		}
		score := 50.0 // neutral when a category has no evidence
		if totalWeight > 0 {
			score = weightedSum / totalWeight
		}
		result[category] = CategoryScore{
			Score:   int(math.Round(clampScore(score))),
			Weight:  CategoryWeights[category],
			Factors: names,
		}
	}
	return result
}

// overallScore combines category scores into the overall risk score [0,100].
func overallScore(categories map[string]CategoryScore) int {
	var weightedSum, totalWeight float64
	for _, c := range categories {
		weightedSum += float64(c.Score) * c.Weight
		totalWeight += c.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return int(math.Round(clampScore(weightedSum / totalWeight)))
}

// assessInvestmentAmount scores the requested amount against the borrower's
// historical average. First-time borrowers score 30.
func assessInvestmentAmount(amount float64, history []*ledger.Investment) float64 {
	if len(history) == 0 {
		return 30
	}
	var sum float64
	for _, inv := range history {
		sum += inv.Amount
	}
	avg := sum / float64(len(history))
	if avg <= 0 {
		return 30
	}
	ratio := amount / avg
	switch {
	case ratio <= 1.2:
		return 100
	case ratio <= 2.0:
		return 80
	case ratio <= 3.0:
		return 60
	default:
		return 30
	}
}

func assessDebtLoad(activeDebt float64) float64 {
	switch {
	case activeDebt == 0:
		return 100
	case activeDebt <= 5000:
		return 90
	case activeDebt <= 15000:
		return 70
	case activeDebt <= 30000:
		return 50
	default:
		return 20
	}
}

func assessTimeOnPlatform(d time.Duration) float64 {
	days := d.Hours() / 24
	switch {
	case days >= 365:
		return 100
	case days >= 180:
		return 85
	case days >= 90:
		return 70
	case days >= 30:
		return 55
	default:
		return 30
	}
}

func assessPurposeClarity(purpose, description string) float64 {
	var score float64
	if purpose != "" {
		score += 50
	}
	if description != "" {
		score += math.Min(50, float64(len(description))/10)
	}
	return clampScore(score)
}

func assessPurposeRisk(purpose string) float64 {
	if score, ok := purposeRiskScores[purpose]; ok {
		return score
	}
	return 30
}

func assessDocumentAuthenticity(docs []*directory.Document) float64 {
	if len(docs) == 0 {
		return 50 // no evidence either way
	}
	return clampScore(float64(countAuthenticDocs(docs)) / float64(len(docs)) * 100)
}

func avgDocumentAge(docs []*directory.Document, now time.Time) time.Duration {
	if len(docs) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range docs {
		total += now.Sub(d.UploadedAt)
	}
	return total / time.Duration(len(docs))
}

func assessDocumentRecency(docs []*directory.Document, now time.Time) float64 {
	days := avgDocumentAge(docs, now).Hours() / 24
	switch {
	case days <= 30:
		return 100
	case days <= 90:
		return 80
	case days <= 180:
		return 60
	case days <= 365:
		return 40
	default:
		return 20
	}
}

// profileCompleteness scores the borrower profile: 20 points each for name,
// email, location, phone, and completed verification.
func profileCompleteness(u *directory.User) float64 {
	var score float64
	if u.FirstName != "" || u.LastName != "" {
		score += 20
	}
	if u.Email != "" {
		score += 20
	}
	if u.Location != "" {
		score += 20
	}
	if u.Phone != "" {
		score += 20
	}
	if u.Verified() {
		score += 20
	}
	return score
}

// confidence estimates how much evidence backed the assessment, in [0.5, 1.0].
func confidence(s *snapshot) float64 {
	c := 0.5
	if len(s.Documents) >= 3 {
		c += 0.1
	}
	if s.Borrower.Verified() {
		c += 0.1
	}
	if len(s.BorrowerInvestments) >= 1 {
		c += 0.1
	}
	if s.Borrower.MFAEnabled {
		c += 0.1
	}
	if s.Now.Sub(s.Borrower.JoinedAt) > 30*24*time.Hour {
		c += 0.1
	}
	return math.Min(1.0, c)
}

// similarityScore rates how comparable two investments are: purpose match 40,
// amount closeness 30, duration closeness 30.
func similarityScore(a, b *ledger.Investment) int {
	var similarity float64
	if a.Purpose == b.Purpose {
		similarity += 40
	}
	if maxAmount := math.Max(a.Amount, b.Amount); maxAmount > 0 {
		amountDiff := math.Abs(a.Amount-b.Amount) / maxAmount
		similarity += (1 - amountDiff) * 30
	}
	if maxDur := math.Max(float64(a.DurationMonths), float64(b.DurationMonths)); maxDur > 0 {
		durationDiff := math.Abs(float64(a.DurationMonths-b.DurationMonths)) / maxDur
		similarity += (1 - durationDiff) * 30
	}
	return int(math.Round(similarity))
}

func countByStatus(invs []*ledger.Investment, status ledger.Status) int {
	n := 0
	for _, inv := range invs {
		if inv.Status == status {
			n++
		}
	}
	return n
}

func sumByStatus(invs []*ledger.Investment, status ledger.Status) float64 {
	var sum float64
	for _, inv := range invs {
		if inv.Status == status {
			sum += inv.Amount
		}
	}
	return sum
}

func countFinancialDocs(docs []*directory.Document) int {
	n := 0
	for _, d := range docs {
		if directory.FinancialDocumentTypes[d.Type] && d.Status == directory.VerificationVerified {
			n++
		}
	}
	return n
}

func countVerifiedDocs(docs []*directory.Document) int {
	n := 0
	for _, d := range docs {
		if d.Status == directory.VerificationVerified {
			n++
		}
	}
	return n
}

func countAuthenticDocs(docs []*directory.Document) int {
	n := 0
	for _, d := range docs {
		if d.VirusScanClean && d.Unique {
			n++
		}
	}
	return n
}

func isOrIsNot(b bool) string {
	if b {
		return "is"
	}
	return "is not"
}

func enabledOrDisabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
