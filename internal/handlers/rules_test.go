package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRulesAndMatch(t *testing.T) {
	path := writeFile(t, "auto_response.json", `[
		{"commands": ["!помощь", "!help"], "response": "Список команд: ..."},
		{"commands": ["!время"], "response": "Среднее время выдачи: 5 минут"}
	]`)

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 2, rules.Len())

	response, ok := rules.Match("!help")
	require.True(t, ok)
	assert.Equal(t, "Список команд: ...", response)

	// case-insensitive, whitespace-tolerant
	response, ok = rules.Match("  !ПОМОЩЬ ")
	require.True(t, ok)
	assert.Equal(t, "Список команд: ...", response)

	_, ok = rules.Match("обычное сообщение")
	assert.False(t, ok)
}

func TestLoadRulesMissingFileIsEmptySet(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, rules.Len())

	_, ok := rules.Match("!help")
	assert.False(t, ok)
}

func TestLoadRulesRejectsBadJSON(t *testing.T) {
	path := writeFile(t, "bad.json", "{not json")
	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestDeliveryMatch(t *testing.T) {
	path := writeFile(t, "auto_delivery.json", `[
		{"lot_names": ["Аккаунт Brawl Stars"], "goods_file": "brawl.txt", "amount": 1, "response": "Ваш аккаунт:\n$product"},
		{"lot_names": ["ключ steam", "steam key"], "goods_file": "steam.txt", "response": "Ключ: $product"}
	]`)

	set, err := LoadDeliveryRules(path)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	rule, ok := set.Match("Аккаунт Brawl Stars, 30 кубков")
	require.True(t, ok)
	assert.Equal(t, "brawl.txt", rule.GoodsFile)

	// case-insensitive containment
	rule, ok = set.Match("Steam Key (Global)")
	require.True(t, ok)
	assert.Equal(t, "steam.txt", rule.GoodsFile)
	assert.Equal(t, 1, rule.Amount, "amount defaults to 1")

	_, ok = set.Match("Что-то без правил")
	assert.False(t, ok)
}

func TestRenderDelivery(t *testing.T) {
	got := renderDelivery("Ваши товары:\n$product\nСпасибо!", []string{"key-1", "key-2"})
	assert.Equal(t, "Ваши товары:\nkey-1\nkey-2\nСпасибо!", got)
}
