package tokenizer

import (
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "Monitoring Plan - flare efficiency shall be measured annually",
	"medium": `Baseline Emissions - The baseline scenario is the continued venting of
        methane from the landfill site. Project participants shall determine the
        amount of methane that would have been destroyed in the absence of the
        project activity, using the adjustment factor AF and the default values.`,
	"long": strings.Repeat(`Monitoring - The project proponent shall monitor the
        flow of landfill gas with a continuous flow meter, calibrated every 12
        months, and record the methane fraction at least quarterly. Data gaps longer
        than 7 days must be filled conservatively. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Tokenize(text)
		}
	})
}

func BenchmarkUnique(b *testing.B) {
	tokens := Tokenize(sampleTexts["long"])
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Unique(tokens)
	}
}
