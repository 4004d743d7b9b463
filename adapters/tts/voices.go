package tts

import (
	"math/rand"
	"strings"
)

// Voice pools available on the Kokoro service
var (
	MaleVoices = []string{
		"im_nicola", "am_echo", "am_eric", "am_fenrir", "am_liam",
		"am_michael", "am_onyx", "am_puck", "am_v0adam", "hm_omega",
		"bm_daniel", "bm_fable", "bm_george", "bm_lewis",
		"bm_v0george", "bm_v0lewis",
	}
	FemaleVoices = []string{"af_aoede", "af_heart", "bf_v0isabella"}
)

// PickVoice returns a random voice name suited to the given gender
func PickVoice(gender string) string {
	if strings.Contains(strings.ToLower(gender), "f") {
		return FemaleVoices[rand.Intn(len(FemaleVoices))]
	}
	return MaleVoices[rand.Intn(len(MaleVoices))]
}

// IsKnownVoice reports whether the name belongs to either voice pool
func IsKnownVoice(name string) bool {
	for _, v := range MaleVoices {
		if v == name {
			return true
		}
	}
	for _, v := range FemaleVoices {
		if v == name {
			return true
		}
	}
	return false
}
