package expand

// synonymTable maps recognized medical entities to their synonyms. At most
// two synonyms per entity are used so a single entity cannot crowd out the
// rest of the expansion budget.
var synonymTable = map[string][]string{
	"diabetes":                 {"diabetes mellitus", "hyperglycemia", "blood sugar disorder"},
	"hypertension":             {"high blood pressure", "elevated BP", "arterial hypertension"},
	"myocardial infarction":    {"heart attack", "MI", "cardiac arrest"},
	"cerebrovascular accident": {"stroke", "CVA", "brain attack"},
	"pneumonia":                {"lung infection", "pulmonary infection", "chest infection"},
	"asthma":                   {"bronchial asthma", "reactive airway", "breathing difficulty"},
	"depression":               {"major depression", "depressive disorder", "mood disorder"},
	"anxiety":                  {"anxiety disorder", "nervousness", "worry", "panic"},
	"arthritis":                {"joint inflammation", "joint pain", "rheumatoid arthritis"},
	"migraine":                 {"severe headache", "vascular headache", "migraine headache"},
	"pain":                     {"ache", "discomfort", "soreness", "tenderness"},
	"fever":                    {"pyrexia", "elevated temperature", "hyperthermia"},
	"fatigue":                  {"tiredness", "exhaustion", "weakness", "lethargy"},
	"nausea":                   {"queasiness", "stomach upset", "morning sickness"},
	"dizziness":                {"vertigo", "lightheadedness", "spinning sensation"},
}

// synonymEntities lists synonymTable keys in a fixed order so entity
// recognition is deterministic across runs.
var synonymEntities = []string{
	"diabetes", "hypertension", "myocardial infarction",
	"cerebrovascular accident", "pneumonia", "asthma", "depression",
	"anxiety", "arthritis", "migraine", "pain", "fever", "fatigue",
	"nausea", "dizziness",
}

// Intent labels for classified queries.
const (
	IntentSymptoms   = "symptoms"
	IntentTreatment  = "treatment"
	IntentDiagnosis  = "diagnosis"
	IntentPrevention = "prevention"
	IntentEmergency  = "emergency"
	IntentGeneral    = "general"
)

// intentRule ties phrasing patterns to an intent. Rules are evaluated in
// order; the first match wins.
type intentRule struct {
	intent   string
	patterns []string
}

var intentRules = []intentRule{
	{IntentEmergency, []string{"emergency", "urgent", "severe", "immediately", "critical"}},
	{IntentSymptoms, []string{"symptoms of", "signs of", "how do i know"}},
	{IntentTreatment, []string{"how to treat", "treatment for", "cure for"}},
	{IntentDiagnosis, []string{"do i have", "am i", "could it be"}},
	{IntentPrevention, []string{"how to prevent", "avoid", "reduce risk"}},
}

// intentTerms maps an intent to contextual expansion terms.
var intentTerms = map[string][]string{
	IntentSymptoms:   {"signs", "manifestations", "presentations", "indicators"},
	IntentTreatment:  {"therapy", "management", "intervention", "care"},
	IntentDiagnosis:  {"detection", "identification", "screening", "evaluation"},
	IntentPrevention: {"prophylaxis", "prevention", "avoidance", "protection"},
	IntentEmergency:  {"urgent", "acute", "critical", "emergency"},
}

// domainRule ties vocabulary hints to a medical domain whose expansion
// terms get appended (at most two per domain).
type domainRule struct {
	domain   string
	keywords []string
}

var domainRules = []domainRule{
	{"symptoms", []string{"symptom", "feel", "pain", "ache", "hurt", "dizzy", "nausea"}},
	{"diagnosis", []string{"diagnosis", "condition", "disease", "disorder", "syndrome"}},
	{"treatment", []string{"treatment", "therapy", "cure", "heal", "surgery"}},
	{"medication", []string{"medication", "medicine", "drug", "pill", "dose"}},
	{"prevention", []string{"prevent", "avoid", "reduce risk", "healthy"}},
	{"emergency", []string{"emergency", "urgent", "severe", "immediate", "critical"}},
}

var domainTerms = map[string][]string{
	"symptoms":   {"signs", "manifestations", "symptoms", "presentations"},
	"diagnosis":  {"diagnostic", "identification", "detection", "screening"},
	"treatment":  {"therapy", "management", "intervention", "treatment"},
	"medication": {"drugs", "pharmaceuticals", "medicines", "medications"},
	"prevention": {"prophylaxis", "prevention", "avoidance", "protection"},
	"emergency":  {"urgent", "acute", "critical", "emergency"},
}

// ageTerms maps user age groups to age-specific vocabulary.
var ageTerms = map[string][]string{
	"pediatric": {"children", "pediatric", "infant", "child"},
	"geriatric": {"elderly", "geriatric", "senior", "older adults"},
	"adult":     {"adult", "grown-up"},
}
