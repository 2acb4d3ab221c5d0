package oauth

import (
	"context"
	"testing"
	"time"

	"postflow/pkg/config"
	"postflow/pkg/errutil"
	"postflow/pkg/events"
	"postflow/pkg/platform"
	"postflow/pkg/platform/mock"
	"postflow/pkg/sealer"
	"postflow/pkg/task/tasktest"
	"postflow/pkg/taskname"
	"postflow/services/credential"
	"postflow/services/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// pageProvider is a provider that can also resolve pages, like Facebook.
type pageProvider struct {
	*mock.MockProvider
	*mock.MockPageResolver
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	mr       *miniredis.Miniredis
	twitter  *mock.MockProvider
	facebook pageProvider
	tasks    *tasktest.Recorder
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, credential.Models()...)
	rdb, mr := testutil.NewTestRedis(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	seal, err := sealer.New(make([]byte, 32))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	twitter := mock.NewMockProvider(ctrl)
	twitter.EXPECT().Code().Return(platform.Twitter).AnyTimes()
	facebook := pageProvider{mock.NewMockProvider(ctrl), mock.NewMockPageResolver(ctrl)}
	facebook.MockProvider.EXPECT().Code().Return(platform.Facebook).AnyTimes()

	cfg := &config.Config{}
	cfg.OAuth.StateTTL = 10 * time.Minute
	cfg.OAuth.PendingTTL = 15 * time.Minute
	cfg.OAuth.FrontendCallbackURL = "https://app.example.com/connect/callback?source=oauth"

	tasks := &tasktest.Recorder{}
	f := &fixture{
		db:       db,
		mr:       mr,
		twitter:  twitter,
		facebook: facebook,
		tasks:    tasks,
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(ServiceParams{
		Config:      cfg,
		Registry:    platform.NewRegistry(twitter, facebook),
		Store:       NewStore(rdb, seal),
		Credentials: credential.NewStore(credential.StoreParams{DB: db, Node: node, Sealer: seal}),
		Emitter:     events.NewEmitter(tasks),
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) authorize(t *testing.T, p platform.Provider, name string) string {
	t.Helper()
	if m, ok := p.(*mock.MockProvider); ok {
		m.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any()).Return("https://auth.example.com/?state=x")
	} else {
		f.facebook.MockProvider.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any()).Return("https://www.facebook.com/dialog/oauth")
	}
	res, err := f.svc.Authorize(context.Background(), name)
	require.NoError(t, err)
	return res.State
}

func (f *fixture) credentialCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&credential.Credential{}).Count(&n).Error)
	return n
}

func twitterGrant() *platform.Grant {
	return &platform.Grant{
		Token:   platform.Token{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 7200},
		Account: platform.Account{ID: "42", Name: "Dana", Username: "dana"},
	}
}

func facebookGrant() *platform.Grant {
	return &platform.Grant{
		Token:     platform.Token{AccessToken: "user-long", ExpiresIn: 5184000},
		Account:   platform.Account{ID: "u-1", Name: "Dana"},
		UserToken: "user-long",
		Pages: []platform.Page{
			{ID: "p-1", Name: "Bakery", AccessToken: "pt-1"},
			{ID: "p-2", Name: "Cafe", AccessToken: "pt-2"},
			{ID: "p-3", Name: "Florist", AccessToken: "pt-3"},
		},
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Authorize(ctx, "myspace")
	require.True(t, errutil.HasStatus(err, errutil.StatusUnsupportedPlatform))

	_, err = f.svc.Authorize(ctx, "linkedin")
	require.True(t, errutil.HasStatus(err, errutil.StatusUnsupportedPlatform))

	var gotState, gotVerifier string
	f.twitter.EXPECT().AuthCodeURL(gomock.Any(), gomock.Any()).
		DoAndReturn(func(state, verifier string) string {
			gotState, gotVerifier = state, verifier
			return "https://x.com/i/oauth2/authorize?state=" + state
		})

	res, err := f.svc.Authorize(ctx, "twitter")
	require.NoError(t, err)
	require.Len(t, res.State, 64)
	require.Equal(t, gotState, res.State)
	require.NotEmpty(t, gotVerifier)
	require.Contains(t, res.AuthorizationURL, res.State)

	require.True(t, f.mr.Exists("oauth:state:"+res.State))
	require.Equal(t, 10*time.Minute, f.mr.TTL("oauth:state:"+res.State))
}

func TestExchangeStateIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	state := f.authorize(t, f.twitter, "twitter")

	f.twitter.EXPECT().Exchange(gomock.Any(), "code-1", gomock.Any()).Return(twitterGrant(), nil).Times(1)

	res, err := f.svc.Exchange(ctx, "twitter", "code-1", state)
	require.NoError(t, err)
	require.NotEqual(t, state, res.SessionKey)
	require.Equal(t, "42", res.Account.ID)
	require.Empty(t, res.Pages)

	_, err = f.svc.Exchange(ctx, "twitter", "code-1", state)
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidState))

	_, err = f.svc.Exchange(ctx, "twitter", "code-1", "never-issued")
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidState))

	_, err = f.svc.Exchange(ctx, "twitter", "code-1", "")
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidState))
}

func TestExchangeRejectsStateOfAnotherPlatform(t *testing.T) {
	f := newFixture(t)
	state := f.authorize(t, f.facebook, "facebook")

	_, err := f.svc.Exchange(context.Background(), "twitter", "code-1", state)
	require.True(t, errutil.HasStatus(err, errutil.StatusPlatformMismatch))
}

func TestExchangeStateExpires(t *testing.T) {
	f := newFixture(t)
	state := f.authorize(t, f.twitter, "twitter")
	f.mr.FastForward(11 * time.Minute)

	_, err := f.svc.Exchange(context.Background(), "twitter", "code-1", state)
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidState))
}

func TestConnectAccountKeepsExchangeTimeExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	state := f.authorize(t, f.twitter, "twitter")
	f.twitter.EXPECT().Exchange(gomock.Any(), "code-1", gomock.Any()).Return(twitterGrant(), nil)

	exchangedAt := f.now
	res, err := f.svc.Exchange(ctx, "twitter", "code-1", state)
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, f.mr.TTL("oauth:pending:"+res.SessionKey))

	f.now = f.now.Add(10 * time.Minute)
	cred, err := f.svc.Connect(ctx, "twitter", ConnectRequest{WorkspaceID: "ws-1", SessionKey: res.SessionKey})
	require.NoError(t, err)
	require.Equal(t, "42", cred.AccountID)
	require.Equal(t, "at-1", cred.AccessToken)
	require.Equal(t, "rt-1", *cred.RefreshToken)
	require.NotNil(t, cred.ExpiresAt)
	require.True(t, exchangedAt.Add(7200*time.Second).Equal(cred.ExpiresAt.UTC()))

	_, err = f.svc.Connect(ctx, "twitter", ConnectRequest{WorkspaceID: "ws-1", SessionKey: res.SessionKey})
	require.True(t, errutil.HasStatus(err, errutil.StatusSessionExpired))

	require.Len(t, f.tasks.Tasks(taskname.EventPrefix+events.CredentialConnected), 1)
}

func TestConnectAfterPendingTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	state := f.authorize(t, f.twitter, "twitter")
	f.twitter.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any()).Return(twitterGrant(), nil)

	res, err := f.svc.Exchange(ctx, "twitter", "code-1", state)
	require.NoError(t, err)

	f.mr.FastForward(15*time.Minute + time.Second)
	_, err = f.svc.Connect(ctx, "twitter", ConnectRequest{WorkspaceID: "ws-1", SessionKey: res.SessionKey})
	require.True(t, errutil.HasStatus(err, errutil.StatusSessionExpired))
	require.Zero(t, f.credentialCount(t))
}

func TestConnectRejectsSessionOfAnotherPlatform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	state := f.authorize(t, f.twitter, "twitter")
	f.twitter.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any()).Return(twitterGrant(), nil)

	res, err := f.svc.Exchange(ctx, "twitter", "code-1", state)
	require.NoError(t, err)

	_, err = f.svc.Connect(ctx, "facebook", ConnectRequest{WorkspaceID: "ws-1", SessionKey: res.SessionKey})
	require.True(t, errutil.HasStatus(err, errutil.StatusPlatformMismatch))
}

func (f *fixture) facebookSession(t *testing.T) *ExchangeResult {
	t.Helper()
	state := f.authorize(t, f.facebook, "facebook")
	f.facebook.MockProvider.EXPECT().Exchange(gomock.Any(), "fb-code", gomock.Any()).Return(facebookGrant(), nil)

	res, err := f.svc.Exchange(context.Background(), "facebook", "fb-code", state)
	require.NoError(t, err)
	return res
}

func TestFacebookExchangeOffersPages(t *testing.T) {
	f := newFixture(t)
	res := f.facebookSession(t)

	require.Equal(t, "p-1", res.DefaultPageID)
	require.Equal(t, []PageOption{
		{ID: "p-1", Name: "Bakery"},
		{ID: "p-2", Name: "Cafe"},
		{ID: "p-3", Name: "Florist"},
	}, res.Pages)
}

func TestFacebookConnectDefaultPage(t *testing.T) {
	f := newFixture(t)
	res := f.facebookSession(t)

	cred, err := f.svc.Connect(context.Background(), "facebook", ConnectRequest{WorkspaceID: "ws-1", SessionKey: res.SessionKey})
	require.NoError(t, err)
	require.Equal(t, "p-1", cred.AccountID)
	require.Equal(t, "Bakery", cred.AccountName)
	require.Equal(t, "pt-1", cred.AccessToken)
	require.Nil(t, cred.ExpiresAt)
	require.Nil(t, cred.RefreshToken)
}

func TestFacebookConnectOtherPageUsesLookup(t *testing.T) {
	f := newFixture(t)
	res := f.facebookSession(t)

	f.facebook.MockPageResolver.EXPECT().ResolvePage(gomock.Any(), "user-long", "p-3").
		Return(&platform.Page{ID: "p-3", Name: "Florist", AccessToken: "pt-3-fresh"}, nil)

	cred, err := f.svc.Connect(context.Background(), "facebook", ConnectRequest{
		WorkspaceID: "ws-1", SessionKey: res.SessionKey, PageID: "p-3",
	})
	require.NoError(t, err)
	require.Equal(t, "p-3", cred.AccountID)
	require.Equal(t, "pt-3-fresh", cred.AccessToken)
	require.Nil(t, cred.ExpiresAt)
}

func TestFacebookConnectUnknownPage(t *testing.T) {
	f := newFixture(t)
	res := f.facebookSession(t)

	f.facebook.MockPageResolver.EXPECT().ResolvePage(gomock.Any(), "user-long", "p-404").
		Return(nil, platform.ErrPageNotFound)

	_, err := f.svc.Connect(context.Background(), "facebook", ConnectRequest{
		WorkspaceID: "ws-1", SessionKey: res.SessionKey, PageID: "p-404",
	})
	require.True(t, errutil.HasStatus(err, errutil.StatusSelectionNotFound))
	require.Zero(t, f.credentialCount(t))
}

func TestReconnectUpdatesCredentialInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	connect := func(token string) *credential.Credential {
		state := f.authorize(t, f.twitter, "twitter")
		grant := twitterGrant()
		grant.Token.AccessToken = token
		f.twitter.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any()).Return(grant, nil)
		res, err := f.svc.Exchange(ctx, "twitter", "code", state)
		require.NoError(t, err)
		cred, err := f.svc.Connect(ctx, "twitter", ConnectRequest{WorkspaceID: "ws-1", SessionKey: res.SessionKey})
		require.NoError(t, err)
		return cred
	}

	first := connect("at-1")
	second := connect("at-2")
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "at-2", second.AccessToken)
	require.Equal(t, int64(1), f.credentialCount(t))
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.facebookSession(t)

	cred, err := f.svc.Connect(ctx, "facebook", ConnectRequest{WorkspaceID: "ws-1", SessionKey: res.SessionKey})
	require.NoError(t, err)

	err = f.svc.Disconnect(ctx, "ws-2", cred.ID)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))

	require.NoError(t, f.svc.Disconnect(ctx, "ws-1", cred.ID))
	require.Zero(t, f.credentialCount(t))
	require.Len(t, f.tasks.Tasks(taskname.EventPrefix+events.CredentialDisconnected), 1)
}

func TestExchangeRejectsGrantWithoutAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state := f.authorize(t, f.twitter, "twitter")
	grant := twitterGrant()
	grant.Account = platform.Account{}
	f.twitter.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any()).Return(grant, nil)

	_, err := f.svc.Exchange(ctx, "twitter", "code", state)
	require.True(t, errutil.HasStatus(err, errutil.StatusExchangeFailed))
	require.Equal(t, 400, errutil.StatusExchangeFailed.HTTPStatus())
	require.Zero(t, f.credentialCount(t))
}

func TestEmptyIdentityCannotOverwriteCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	state := f.authorize(t, f.twitter, "twitter")
	f.twitter.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any()).Return(twitterGrant(), nil)
	res, err := f.svc.Exchange(ctx, "twitter", "code", state)
	require.NoError(t, err)
	first, err := f.svc.Connect(ctx, "twitter", ConnectRequest{WorkspaceID: "ws-1", SessionKey: res.SessionKey})
	require.NoError(t, err)

	for _, token := range []string{"at-x", "at-y"} {
		state := f.authorize(t, f.twitter, "twitter")
		grant := twitterGrant()
		grant.Token.AccessToken = token
		grant.Account = platform.Account{}
		f.twitter.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any()).Return(grant, nil)
		_, err := f.svc.Exchange(ctx, "twitter", "code", state)
		require.True(t, errutil.HasStatus(err, errutil.StatusExchangeFailed))
	}

	require.Equal(t, int64(1), f.credentialCount(t))
	stored, err := f.svc.credentials.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "42", stored.AccountID)
	require.Equal(t, "at-1", stored.AccessToken)
}
