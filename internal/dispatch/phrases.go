package dispatch

// Greetings are returned by the greeting rule.
var Greetings = []string{
	"Good to see you again. T.E.T.R.I.S systems are fully operational.",
	"Hello. All systems green and ready for your commands.",
	"Greetings. I've been monitoring system status while you were away.",
	"Welcome back. How may I assist you today?",
}

// Identity is returned by the identity rule.
const Identity = "I am T.E.T.R.I.S - Tactically Enhanced Technology Response Intelligence System. " +
	"I'm an assistant designed to learn, adapt, and assist with complex tasks. " +
	"Teach me new commands and I'll remember them."

// Help is returned by the help rule.
const Help = "Here's what I can do: greet you, tell you the time or date, tell a joke, " +
	"and run any custom command you teach me. " +
	"Add one with 'tetris commands add <trigger> --response <text>'. " +
	"Commands can reply with text, run a program or open a web page."

// JokeCategories lists the keys of Jokes in a stable order.
var JokeCategories = []string{"tech", "science", "ai"}

// Jokes by category.
var Jokes = map[string][]string{
	"tech": {
		"Why do programmers prefer dark mode? Because light attracts bugs!",
		"How many programmers does it take to change a light bulb? None, that's a hardware problem!",
		"Why did the AI break up with the database? It couldn't handle the relationship!",
		"What's a computer's favorite snack? Microchips!",
	},
	"science": {
		"Why don't scientists trust atoms? Because they make up everything!",
		"What do you call a sleeping bull at the particle accelerator? A bulldozer!",
		"Why did the photon refuse to check a bag? Because it was traveling light!",
		"What's the best thing about Switzerland? I don't know, but the flag is a big plus!",
	},
	"ai": {
		"Why did the neural network go to therapy? It had too many layers of issues!",
		"What did the machine learning algorithm say to the data? You complete me!",
		"Why don't AIs ever get lost? They always know their way around the neural pathways!",
		"What's an AI's favorite type of music? Deep learning beats!",
	},
}

// CommonPhrases are built-in utterances offered by autocomplete.
var CommonPhrases = []string{
	"open calculator",
	"open notepad",
	"system status",
	"what time is it",
	"search for",
	"play music",
	"tell a joke",
	"weather forecast",
	"shutdown computer",
	"lock screen",
	"create folder",
	"help",
}
