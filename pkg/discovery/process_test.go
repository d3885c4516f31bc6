package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/encoders/kind"
	"relaycap.dev/pkg/encoders/tag"
	"relaycap.dev/pkg/encoders/tag/tags"
	"relaycap.dev/pkg/registry"
)

func serverAnnouncement(pubkey []byte, serverID string) *event.E {
	ev := event.New()
	ev.Pubkey = pubkey
	ev.Kind = kind.New(kind.ServerAnnouncement)
	ev.Tags = tags.New(tag.New("d", serverID))
	ev.Content = `{"capabilities":{"tools":{}}}`
	return ev
}

func toolsList(pubkey []byte, serverID string) *event.E {
	ev := event.New()
	ev.Pubkey = pubkey
	ev.Kind = kind.New(kind.ToolsList)
	ev.Tags = tags.New(tag.New("s", serverID))
	ev.Content = `{"tools":[{"name":"echo","description":"echoes input"}]}`
	return ev
}

func TestProcessRegistersServerThenTools(t *testing.T) {
	regs := registry.NewSet()
	loop := New(nil, regs, nil, 0)
	pubkey := []byte("provider-key")

	loop.process([]*event.E{toolsList(pubkey, "srv1"), serverAnnouncement(pubkey, "srv1")})

	require.NotNil(t, regs.Servers.Get("srv1"))
	tools := regs.Tools.List()
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].Tool.Name)
	require.Equal(t, "srv1", tools[0].ServerID)
}

func TestProcessDropsNonWhitelistedProvider(t *testing.T) {
	regs := registry.NewSet()
	whitelist := NewWhitelist("allowedhex")
	loop := New(nil, regs, whitelist, 0)

	loop.process([]*event.E{serverAnnouncement([]byte("someone-else"), "srv1")})

	require.Nil(t, regs.Servers.Get("srv1"))
}

func TestProcessSkipsToolsListMissingServerTag(t *testing.T) {
	regs := registry.NewSet()
	loop := New(nil, regs, nil, 0)

	ev := event.New()
	ev.Pubkey = []byte("provider-key")
	ev.Kind = kind.New(kind.ToolsList)
	ev.Content = `{"tools":[{"name":"echo"}]}`

	loop.process([]*event.E{ev})
	require.Empty(t, regs.Tools.List())
}

func TestProcessSkipsMalformedToolsJSON(t *testing.T) {
	regs := registry.NewSet()
	loop := New(nil, regs, nil, 0)

	ev := event.New()
	ev.Pubkey = []byte("provider-key")
	ev.Kind = kind.New(kind.ToolsList)
	ev.Tags = tags.New(tag.New("s", "srv1"))
	ev.Content = `not json`

	loop.process([]*event.E{ev})
	require.Empty(t, regs.Tools.List())
}

func TestProcessRoutesResourceTemplatesByDTag(t *testing.T) {
	regs := registry.NewSet()
	loop := New(nil, regs, nil, 0)

	ev := event.New()
	ev.Pubkey = []byte("provider-key")
	ev.Kind = kind.New(kind.ResourcesList)
	ev.Tags = tags.New(tag.New("s", "srv1"), tag.New("d", "resources/templates/list"))
	ev.Content = `{"resourceTemplates":[{"uriTemplate":"file:///{path}","name":"file"}]}`

	loop.process([]*event.E{ev})
	require.Empty(t, regs.Resources.List())
	templates := regs.ResourceTemplates.List()
	require.Len(t, templates, 1)
	require.Equal(t, "file:///{path}", templates[0].Template.URITemplate)
}
