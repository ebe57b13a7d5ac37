package techniques

// Default is the built-in catalog.
func Default() []Technique {
	return []Technique{
		{
			ID:          "deep_breathing",
			Name:        "Deep Breathing Exercise",
			Description: "Slow, deep breathing to reduce stress and anxiety",
			Steps: []string{
				"Breathe in slowly through your nose for 4 counts",
				"Hold the breath for 2 counts",
				"Exhale through your mouth for 6 counts",
				"Repeat several times while focusing on your breath",
			},
			Applies: map[string]float64{"angry": 0.9, "fear": 0.9, "anxiety": 0.9, "stress": 0.9, "frustration": 0.8},
		},
		{
			ID:          "cognitive_reframing",
			Name:        "Cognitive Reframing",
			Description: "Identifying and changing negative thought patterns",
			Steps: []string{
				"Notice the thought that is making you feel worse",
				"Ask yourself what evidence supports or contradicts it",
				"Consider what you would say to a friend in the same situation",
				"Write down a more balanced way of seeing it",
			},
			Applies: map[string]float64{"angry": 0.8, "fear": 0.7, "anxiety": 0.7, "sad": 0.8, "disgust": 0.8, "frustration": 0.8},
		},
		{
			ID:          "mindfulness",
			Name:        "Mindfulness Practice",
			Description: "Focusing on the present moment without judgment",
			Steps: []string{
				"Notice five things you can see",
				"Notice four things you can touch",
				"Notice three things you can hear",
				"Notice two things you can smell and one thing you can taste",
			},
			Applies: map[string]float64{"angry": 0.7, "anxiety": 0.8, "surprise": 0.7, "disgust": 0.7, "grief": 0.7, "stress": 0.8, "neutral": 0.6, "calm": 0.5},
		},
		{
			ID:          "gratitude",
			Name:        "Gratitude Exercise",
			Description: "Reflecting on things to be thankful for",
			Steps: []string{
				"Think of three things you are grateful for today",
				"For each one, recall why it matters to you",
				"Write them down to come back to later",
			},
			Applies: map[string]float64{"sad": 0.7, "happy": 0.9, "loneliness": 0.7, "neutral": 0.6},
		},
		{
			ID:          "progressive_relaxation",
			Name:        "Progressive Muscle Relaxation",
			Description: "Tensing and relaxing muscle groups to reduce physical tension",
			Steps: []string{
				"Find a quiet place to sit or lie down",
				"Tense the muscles in your feet for 5 seconds, then release",
				"Move upward through each muscle group to your head",
				"Notice the difference between tension and relaxation",
			},
			Applies: map[string]float64{"angry": 0.8, "fear": 0.8, "anxiety": 0.9, "stress": 0.9},
		},
		{
			ID:          "journal_writing",
			Name:        "Expressive Journal Writing",
			Description: "Writing about emotions and experiences",
			Steps: []string{
				"Set a timer for 10 to 15 minutes",
				"Write freely about your thoughts and feelings",
				"Do not worry about grammar or structure",
				"Read it back and note any patterns",
			},
			Applies: map[string]float64{"angry": 0.6, "sad": 0.7, "surprise": 0.6, "grief": 0.9, "loneliness": 0.6},
		},
		{
			ID:          "positive_affirmation",
			Name:        "Positive Affirmations",
			Description: "Repeating positive statements about oneself",
			Steps: []string{
				"Choose a short, positive statement that feels true to you",
				"Repeat it slowly several times",
				"Return to it whenever you face a difficult moment",
			},
			Applies: map[string]float64{"happy": 0.7, "neutral": 0.6},
		},
		{
			ID:          "social_connection",
			Name:        "Social Connection Exercise",
			Description: "Reaching out to supportive people",
			Steps: []string{
				"Think of someone you trust",
				"Send them a message or give them a call",
				"Share how you are feeling, even briefly",
			},
			Applies: map[string]float64{"sad": 0.9, "happy": 0.8, "grief": 0.8, "loneliness": 0.9},
		},
		{
			ID:          "physical_exercise",
			Name:        "Physical Exercise",
			Description: "Engaging in physical activity to improve mood",
			Steps: []string{
				"Pick a movement you enjoy, such as walking, dancing or stretching",
				"Do it for at least ten minutes",
				"Notice how your body and mood feel afterwards",
			},
			Applies: map[string]float64{"sad": 0.8, "stress": 0.8, "frustration": 0.7},
		},
		{
			ID:          "visualization",
			Name:        "Positive Visualization",
			Description: "Imagining calming or positive scenarios",
			Steps: []string{
				"Close your eyes and take a few slow breaths",
				"Imagine a place where you feel safe and calm",
				"Notice the details using all your senses",
				"Stay there for a few minutes before opening your eyes",
			},
			Applies: map[string]float64{"fear": 0.7, "calm": 0.5},
		},
	}
}
