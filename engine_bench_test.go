package portalAuth

import (
	"context"
	"testing"
)

func BenchmarkLoginPasswordOnly(b *testing.B) {
	env := newTestEnv(b, testConfig(b, MemberConfig()))
	env.addAccount(b, "bench@example.org", "Str0ng!Pass")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := env.engine.Login(ctx, "bench@example.org", "Str0ng!Pass")
		if err != nil || res.Outcome != OutcomeAuthenticated {
			b.Fatalf("login failed: %+v err=%v", res, err)
		}
	}
}

func BenchmarkParseAssertion(b *testing.B) {
	env := newTestEnv(b, testConfig(b, MemberConfig()))
	env.addAccount(b, "bench@example.org", "Str0ng!Pass")

	res, err := env.engine.Login(context.Background(), "bench@example.org", "Str0ng!Pass")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.ParseAssertion(res.Assertion); err != nil {
			b.Fatalf("parse failed: %v", err)
		}
	}
}

func BenchmarkIssueAndVerifyCodeRedis(b *testing.B) {
	cfg := testConfig(b, MemberConfig())
	cfg.OTP.IssuesPerHour = 0
	env := newTestEnv(b, cfg, withRedis(newTestRedis(b)))
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := env.engine.IssueCode(ctx, "bench@example.org", PurposeStepUp); err != nil {
			b.Fatalf("issue failed: %v", err)
		}
		d := env.inbox.next(b)
		ok, err := env.engine.VerifyCode(ctx, "bench@example.org", PurposeStepUp, d.code)
		if err != nil || !ok {
			b.Fatalf("verify failed: ok=%v err=%v", ok, err)
		}
	}
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginSuccess)
		}
	})
}
