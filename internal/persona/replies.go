package persona

// Rule maps trigger keywords to a canned reply. A rule fires when any keyword
// occurs as a word in the user's message.
type Rule struct {
	Keywords []string
	Reply    string
}

// Entry is one row of the retrieval corpus. An empty Mode matches every mode.
type Entry struct {
	Mode     Mode
	Keywords []string
	Text     string
}

var fallbacks = map[Mode]string{
	ModeVent:         DefaultReply,
	ModeReframe:      "What's the story you're telling yourself about this? Is there another way to read it?",
	ModePlan:         "If you picked one small thing to do about this in the next day, what would it be?",
	ModeGratitude:    "Even on a hard day, was there one moment that felt a little lighter?",
	ModeRelationship: "What do you wish the other person understood about how this feels for you?",
}

var rules = map[Mode][]Rule{
	ModeVent: {
		{Keywords: []string{"work", "job", "boss", "deadline", "deadlines"}, Reply: "Work pressure can pile up fast. What part of it is weighing on you most today?"},
		{Keywords: []string{"tired", "exhausted", "sleep", "burnout"}, Reply: "That sounds draining. How long have you been running on empty like this?"},
		{Keywords: []string{"anxious", "anxiety", "worried", "stressed", "stress"}, Reply: "That sounds like a lot to carry. Where do you notice the stress most, in your thoughts or in your body?"},
		{Keywords: []string{"sad", "down", "lonely", "alone"}, Reply: "I'm sorry you're feeling this way. I'm here. What's been going on?"},
		{Keywords: []string{"angry", "mad", "furious", "frustrated"}, Reply: "It makes sense to feel frustrated. What happened that set it off?"},
	},
	ModeReframe: {
		{Keywords: []string{"always", "never", "everyone", "nobody"}, Reply: "I notice words like 'always' or 'never'. Can you think of even one exception?"},
		{Keywords: []string{"failure", "failed", "useless", "stupid"}, Reply: "That's a harsh judgement. Would you say the same thing to a friend in your place?"},
		{Keywords: []string{"should", "must", "supposed"}, Reply: "Where does that 'should' come from? What would happen if you loosened it a little?"},
	},
	ModePlan: {
		{Keywords: []string{"overwhelmed", "too", "much", "everything"}, Reply: "When everything feels urgent, it helps to list it. What are the top three things on your mind?"},
		{Keywords: []string{"deadline", "deadlines", "due", "tomorrow"}, Reply: "Let's work backwards from the deadline. What is the very first step you could take?"},
		{Keywords: []string{"procrastinating", "stuck", "start"}, Reply: "Getting started is often the hardest part. What would a five-minute version of the task look like?"},
	},
	ModeGratitude: {
		{Keywords: []string{"friend", "friends", "family", "partner"}, Reply: "It sounds like people matter a lot here. What did they do that meant something to you?"},
		{Keywords: []string{"nothing", "bad", "awful", "terrible"}, Reply: "Some days are just hard. Even so, was there a small comfort, like a warm drink or a quiet minute?"},
	},
	ModeRelationship: {
		{Keywords: []string{"fight", "argument", "argued", "conflict"}, Reply: "Arguments with people we care about hurt. What do you think each of you needed in that moment?"},
		{Keywords: []string{"ignored", "unheard", "listen", "listening"}, Reply: "Feeling unheard is painful. How might you tell them what you need without blame?"},
		{Keywords: []string{"trust", "lied", "betrayed"}, Reply: "Trust takes time to rebuild. What would help you feel safer with them again?"},
	},
}

var general = []Entry{
	{Keywords: []string{"hello", "hi", "hey"}, Text: "Hi, I'm glad you're here. What would you like to talk about?"},
	{Keywords: []string{"thanks", "thank"}, Text: "You're welcome. I'm here whenever you want to keep talking."},
	{Keywords: []string{"bye", "goodbye", "later"}, Text: "Take care of yourself. I'm here if you want to talk again."},
}

// Rules returns the rule table for mode, in priority order
func Rules(mode Mode) []Rule {
	return rules[mode]
}

// Fallback returns the reply used when no rule matches
func Fallback(mode Mode) string {
	if reply, ok := fallbacks[mode]; ok {
		return reply
	}
	return DefaultReply
}

// Corpus returns the seed rows for the retrieval backend: every mode's rules
// plus mode-independent entries
func Corpus() []Entry {
	var out []Entry
	for _, mode := range Modes() {
		for _, r := range rules[mode] {
			out = append(out, Entry{Mode: mode, Keywords: r.Keywords, Text: r.Reply})
		}
	}
	out = append(out, general...)
	return out
}
