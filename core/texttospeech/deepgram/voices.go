package deepgram

import "golang.org/x/text/language"

type Voice string

const (
	VoiceThalia    Voice = "aura-2-thalia-en"
	VoiceAndromeda Voice = "aura-2-andromeda-en"
	VoiceApollo    Voice = "aura-2-apollo-en"
	VoiceHelena    Voice = "aura-2-helena-en"
	VoiceCeleste   Voice = "aura-2-celeste-es"
	VoiceNestor    Voice = "aura-2-nestor-es"
	VoiceRhea      Voice = "aura-2-rhea-nl"
	VoiceAgathe    Voice = "aura-2-agathe-fr"
	VoiceViktoria  Voice = "aura-2-viktoria-de"
	VoiceLivia     Voice = "aura-2-livia-it"
	VoiceFujin     Voice = "aura-2-fujin-ja"

	defaultVoice = VoiceThalia
)

func defaultVoices() map[language.Base]Voice {
	return map[language.Base]Voice{
		language.MustParseBase("en"): VoiceThalia,
		language.MustParseBase("es"): VoiceCeleste,
		language.MustParseBase("nl"): VoiceRhea,
		language.MustParseBase("fr"): VoiceAgathe,
		language.MustParseBase("de"): VoiceViktoria,
		language.MustParseBase("it"): VoiceLivia,
		language.MustParseBase("ja"): VoiceFujin,
	}
}

// voiceFor picks the voice configured for the base language of tag. Languages
// without a voice fall back to the default one.
func (c *PlaybackClient) voiceFor(tag string) Voice {
	parsed, err := language.Parse(tag)
	if err != nil {
		logger.Warn("invalid language tag, using default voice", "language", tag, "error", err)
		return c.defaultVoice
	}

	base, _ := parsed.Base()
	if voice, ok := c.voices[base]; ok {
		return voice
	}

	logger.Warn("no voice for language, using default voice", "language", tag, "voice", string(c.defaultVoice))
	return c.defaultVoice
}
