package responder

import (
	"fmt"
	"strings"

	"github.com/maastricht-university/empath-pipeline/emotion"
)

// Template families. Every label maps onto exactly one.
const (
	famAnger    = "anger"
	famFear     = "fear"
	famSadness  = "sadness"
	famJoy      = "joy"
	famSurprise = "surprise"
	famDisgust  = "disgust"
	famNeutral  = "neutral"
)

var families = map[string]string{
	emotion.Angry: famAnger, "frustration": famAnger, "irritation": famAnger, "rage": famAnger,
	emotion.Fear: famFear, "anxiety": famFear, "stress": famFear, "nervousness": famFear, "worry": famFear,
	emotion.Sad: famSadness, "grief": famSadness, "loneliness": famSadness, "depression": famSadness,
	emotion.Happy: famJoy, "excitement": famJoy, "contentment": famJoy, "love": famJoy,
	emotion.Surprise: famSurprise,
	emotion.Disgust:  famDisgust,
	emotion.Neutral:  famNeutral, emotion.Calm: famNeutral,
}

// Family returns the template family for a label; unknown labels are neutral.
func Family(label string) string {
	if f, ok := families[emotion.Canonical(label)]; ok {
		return f
	}
	return famNeutral
}

var greetings = map[string][]string{
	famAnger: {
		"I notice you seem frustrated right now.",
		"It sounds like you're feeling angry about this situation.",
		"I can sense some frustration in what you're expressing.",
	},
	famFear: {
		"I notice you seem anxious or worried.",
		"It sounds like this situation is causing you some fear.",
		"I can tell you're feeling apprehensive about this.",
	},
	famSadness: {
		"I notice you seem to be feeling down right now.",
		"It sounds like you're going through a difficult time.",
		"I can sense some sadness in what you're sharing.",
	},
	famJoy: {
		"I notice you're feeling positive about this!",
		"It sounds like things are going well for you.",
		"I can sense the enthusiasm in what you're sharing.",
	},
	famSurprise: {
		"This seems to have caught you off guard.",
		"It sounds like this was unexpected for you.",
		"I can tell you weren't anticipating this development.",
	},
	famDisgust: {
		"I notice this situation seems troubling to you.",
		"It sounds like you're having a strong negative reaction to this.",
		"I can tell this is something you find difficult to accept.",
	},
	famNeutral: {
		"I hear what you're saying.",
		"Thank you for sharing this with me.",
		"I understand what you're expressing.",
	},
}

var validations = map[string][]string{
	famAnger: {
		"It's completely natural to feel angry in this situation.",
		"Your frustration makes a lot of sense given what you've described.",
		"Many people would feel similarly in your position.",
	},
	famFear: {
		"It's understandable to feel anxious about this.",
		"This kind of worry is a natural response to uncertainty.",
		"Your concerns are valid given what you're facing.",
	},
	famSadness: {
		"It's okay to feel sad about this. It's a natural response.",
		"What you're feeling is a normal reaction to loss or disappointment.",
		"Many people would feel down in this situation.",
	},
	famJoy: {
		"It's wonderful that you're feeling good about this!",
		"You have every reason to feel happy about this.",
		"Your positive feelings are well-deserved.",
	},
	famSurprise: {
		"It's natural to feel taken aback by unexpected changes.",
		"Surprise can be disorienting, and that's completely normal.",
		"It makes sense that you didn't see this coming.",
	},
	famDisgust: {
		"It's understandable to have such a strong reaction to this.",
		"Many people would find this situation challenging.",
		"Your response is a natural reaction to something that conflicts with your values.",
	},
	famNeutral: {
		"Thank you for sharing your perspective.",
		"I appreciate you explaining how you see this situation.",
		"It's helpful to understand your point of view.",
	},
}

var intros = []string{
	"Something that might help in this situation is %s.",
	"Many people find that %s can be beneficial when feeling this way.",
	"One approach that could be helpful is %s.",
	"Have you ever tried %s? It might be helpful.",
	"I'd like to suggest trying %s.",
}

var followUps = []string{
	"How does that suggestion sound to you?",
	"Would you be willing to try this approach?",
	"Does this resonate with what you're experiencing?",
	"What are your thoughts about this suggestion?",
	"Would you like to explore more techniques like this?",
}

var closings = []string{
	"Remember that experiencing emotions is part of being human. Be gentle with yourself as you navigate this.",
	"I'm here to support you through this process whenever you need to talk.",
	"Take the time you need to process these feelings. Emotional well-being is a journey.",
	"Remember that seeking support is a sign of strength, not weakness.",
	"I hope these suggestions provide some help. Please let me know if there's anything else I can do to support you.",
}

func pick(list []string, variant int) string {
	return list[variant%len(list)]
}

// Template composes the fallback reply. The result depends only on the
// dominant label, the technique list and the history length.
func Template(req Request) string {
	dominant := req.Fused.Dominant
	if dominant == "" {
		dominant = req.Fused.Distribution.Dominant()
	}
	fam := Family(dominant)
	v := len(req.History)

	parts := []string{pick(greetings[fam], v), pick(validations[fam], v)}
	if len(req.Techniques) == 0 {
		return strings.Join(parts, " ")
	}
	top := req.Techniques[0]
	parts = append(parts, fmt.Sprintf(pick(intros, v), top.Name))
	if len(top.Steps) > 0 {
		steps := make([]string, len(top.Steps))
		for i, s := range top.Steps {
			steps[i] = fmt.Sprintf("%d. %s.", i+1, strings.TrimSuffix(s, "."))
		}
		parts = append(parts, "Here's how: "+strings.Join(steps, " "))
	}
	parts = append(parts, pick(followUps, v), pick(closings, v))
	return strings.Join(parts, " ")
}
