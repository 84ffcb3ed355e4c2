package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLocales(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	en := `en:
  errors:
    bad_request: "Bad request."
    voucher_not_found: "Voucher not found."
`
	uz := `uz:
  errors:
    bad_request: "So'rov noto'g'ri."
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.yaml"), []byte(en), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uz.yaml"), []byte(uz), 0o644))

	return dir
}

func TestTranslatorResolvesKeys(t *testing.T) {
	m, err := LoadFromDir(writeLocales(t), "en")
	require.NoError(t, err)

	tr := m.Translator("en")
	assert.Equal(t, "Bad request.", tr.T("errors.bad_request"))
	assert.Equal(t, "en", tr.Lang())
}

func TestTranslatorFallsBackToDefaultLanguage(t *testing.T) {
	m, err := LoadFromDir(writeLocales(t), "en")
	require.NoError(t, err)

	// key missing in uz resolves from en
	tr := m.Translator("uz")
	assert.Equal(t, "So'rov noto'g'ri.", tr.T("errors.bad_request"))
	assert.Equal(t, "Voucher not found.", tr.T("errors.voucher_not_found"))
}

func TestTranslatorUnknownLanguage(t *testing.T) {
	m, err := LoadFromDir(writeLocales(t), "en")
	require.NoError(t, err)

	tr := m.Translator("fr")
	assert.Equal(t, "en", tr.Lang())
	assert.Equal(t, "Bad request.", tr.T("errors.bad_request"))
}

func TestMissingKeyReturnsKey(t *testing.T) {
	m, err := LoadFromDir(writeLocales(t), "en")
	require.NoError(t, err)

	assert.Equal(t, "errors.nonexistent", m.Translator("en").T("errors.nonexistent"))
}

func TestLoadRequiresDefaultLanguage(t *testing.T) {
	_, err := LoadFromDir(writeLocales(t), "de")
	assert.Error(t, err)
}

func TestBundledLocalesParse(t *testing.T) {
	m, err := LoadFromDir("../../locales", "en")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "uz"}, m.Languages())

	for _, lang := range []string{"en", "uz"} {
		tr := m.Translator(lang)
		for _, key := range []string{
			"errors.bad_request",
			"errors.temporarily_unavailable",
			"errors.rate_limited",
			"errors.internal",
			"errors.account_not_found",
			"errors.offer_not_found",
			"errors.out_of_stock",
			"errors.insufficient_balance",
			"errors.voucher_not_found",
			"vouchers.already_used",
			"vouchers.consumed",
		} {
			assert.NotEqual(t, key, tr.T(key), "missing %s translation for %s", lang, key)
		}
	}
}
