package intent

// Kind is the coarse routing category of an inbound message.
type Kind string

const (
	KindNews Kind = "news"
	KindChat Kind = "chat"
)

type Result struct {
	Kind       Kind
	Topic      string
	IsRealTime bool
}

// PrimaryIntent is the finer-grained tag from the secondary classifier.
type PrimaryIntent string

const (
	IntentGreeting   PrimaryIntent = "greeting"
	IntentFactCheck  PrimaryIntent = "factCheck"
	IntentNewsQuery  PrimaryIntent = "newsQuery"
	IntentOpinion    PrimaryIntent = "opinionRequest"
	IntentTopicQuery PrimaryIntent = "topicQuery"
	IntentThankYou   PrimaryIntent = "thankYou"
	IntentFarewell   PrimaryIntent = "farewell"
	IntentGeneral    PrimaryIntent = "general"
)

type Analysis struct {
	PrimaryIntent PrimaryIntent
	Topics        []string
	HasQuestion   bool
	IsNewsRelated bool
	ContainsClaim bool
}
