package interceptor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"gorged/mutation"
)

// StackExchangeDomains are the Stack Exchange network sites.
var StackExchangeDomains = []string{
	"stackexchange.com",
	".stackexchange.com",
	"askubuntu.com",
	"mathoverflow.net",
	"blogoverflow.com",
	"serverfault.com",
	"stackoverflow.com",
	"stackapps.com",
	"stackmod.blog",
	"stackoverflow.blog",
	"stackoverflowbusiness.com",
	"superuser.com",
	"tex-talk.net",
	"thesffblog.com",
}

const (
	redditPattern   = `(?<!old\.)reddit\.com`
	twitterPattern  = `twitter\.com`
	imgurPattern    = `imgur\.com`
	facebookPattern = `facebook\.com`

	stackExchangeParent = "stackexchange.com"
)

var (
	subredditPath    = regexp.MustCompile(`^/r/[^/?]+/?`)
	imgurGalleryPath = regexp.MustCompile(`^/gallery/\w+/?`)
	imgurSubPostPath = regexp.MustCompile(`^/r/[^/]+/\w+/?`)
	facebookUserPath = regexp.MustCompile(`^/[^/]+/?`)
)

const redditAfterPostJS = `    var text = node.innerText;
    if (text && /^More posts from the .* community$/i.test(text.trim()) && node.parentNode) {
      node.parentNode.remove();
    }`

func landing(rc *RequestContext) bool { return rc.IsLanding() }

func pathMatches(re *regexp.Regexp) func(*RequestContext) bool {
	return func(rc *RequestContext) bool { return re.MatchString(rc.Path) }
}

// Catalog returns the compiled-in interceptor definitions in registration order.
func Catalog() []Definition {
	se := DomainPattern(StackExchangeDomains...)
	seTags := func(extra ...string) []string { return append([]string{"site:stackexchange"}, extra...) }

	return []Definition{
		// Stack Exchange
		{
			ID:             "stackexchange-remove-landing-feed",
			Description:    `Removes the "Top Questions" feed from Stack Exchange site landing pages`,
			URLPattern:     se,
			DefaultEnabled: true,
			Tags:           seTags("scroller"),
			Strategy:       "node-removal",
			Selector:       "#mainbar",
			When: func(rc *RequestContext) bool {
				return rc.IsLanding() && rc.Host != stackExchangeParent
			},
		},
		{
			ID:             "stackexchange-remove-all-questions-feed",
			Description:    `Removes the "All Questions" feed under /questions`,
			URLPattern:     se,
			DefaultEnabled: true,
			Tags:           seTags("scroller"),
			Strategy:       "node-removal",
			Selector:       "#mainbar",
			When:           func(rc *RequestContext) bool { return strings.TrimSuffix(rc.Path, "/") == "/questions" },
		},
		{
			ID:             "stackexchange-remove-hot-network-questions",
			Description:    `Removes the "Hot Network Questions" sidebar`,
			URLPattern:     se,
			DefaultEnabled: true,
			Tags:           seTags("pronged"),
			Strategy:       "node-removal",
			Selector:       "#hot-network-questions",
		},
		{
			ID:             "stackexchange-remove-related",
			Description:    `Removes the "Related" sidebar`,
			URLPattern:     se,
			DefaultEnabled: true,
			Tags:           seTags("pronged"),
			Strategy:       "node-removal",
			Selector:       ".sidebar-related",
		},
		{
			ID:             "stackexchange-remove-linked",
			Description:    `Removes the "Linked" sidebar`,
			URLPattern:     se,
			DefaultEnabled: false,
			Tags:           seTags("pronged"),
			Strategy:       "node-removal",
			Selector:       ".sidebar-linked",
		},
		{
			ID:             "stackexchange-remove-rss-link",
			Description:    `Removes the "Question feed" link`,
			URLPattern:     se,
			DefaultEnabled: false,
			Tags:           seTags("clutter"),
			Strategy:       "node-removal",
			Selector:       "#feed-link",
		},
		{
			ID:             "stackexchange-remove-sticky-note",
			Description:    `Removes the yellow "sticky note" on the right side of the page`,
			URLPattern:     se,
			DefaultEnabled: true,
			Tags:           seTags("clutter"),
			Strategy:       "node-removal",
			Selector:       "#sidebar .s-sidebarwidget",
		},
		{
			ID:             "stackexchange-remove-left-sidebar",
			Description:    "Hides the left navigation bar",
			URLPattern:     se,
			DefaultEnabled: false,
			Tags:           seTags("clutter"),
			Strategy:       "opacity-0",
			Selector:       "#left-sidebar",
		},
		{
			ID:             "stackexchange-remove-se-homepage-feed",
			Description:    "Removes the feed on the landing page of stackexchange.com",
			URLPattern:     se,
			DefaultEnabled: true,
			Tags:           seTags("scroller"),
			Strategy:       "node-removal",
			Selector:       "#question-list",
			When: func(rc *RequestContext) bool {
				return rc.IsLanding() && rc.Host == stackExchangeParent
			},
		},

		// Reddit
		{
			ID:             "reddit-remove-homepage-feed",
			Description:    "Removes the feed from the homepage of Reddit",
			URLPattern:     redditPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:reddit", "scroller"},
			Mutate: func(doc *goquery.Document, rc *RequestContext) error {
				if !rc.IsLanding() {
					return nil
				}
				return mutation.EmptyRoot(doc)
			},
		},
		{
			ID:             "reddit-remove-sub-feed",
			Description:    "Removes the feed from subreddits",
			URLPattern:     redditPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:reddit", "scroller"},
			Strategy:       "display-none",
			Selector:       ".ListingLayout-outerContainer > :nth-child(2) > :nth-child(3)",
			When:           pathMatches(subredditPath),
		},
		{
			ID:             "reddit-remove-after-post-feed",
			Description:    "Removes the feed that appears after posts",
			URLPattern:     redditPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:reddit", "pronged"},
			Strategy:       "dynamic-hide",
			Script:         redditAfterPostJS,
		},

		// Twitter
		{
			ID:             "twitter-remove-homepage-feed",
			Description:    "Removes the timeline from the homepage of Twitter",
			URLPattern:     twitterPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:twitter", "scroller"},
			Strategy:       "dynamic-hide",
			Script:         mutation.RemoveMatching(`[aria-label="Timeline: Your Home Timeline"]`, true),
		},
		{
			ID:             "twitter-remove-trending",
			Description:    `Removes the "What's happening" block from Twitter`,
			URLPattern:     twitterPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:twitter", "pronged"},
			Strategy:       "dynamic-hide",
			Script:         mutation.RemoveMatching(`[aria-label="Timeline: Trending now"]`, true),
		},
		{
			ID:             "twitter-remove-follow-suggestions",
			Description:    `Removes the "Who to follow" block`,
			URLPattern:     twitterPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:twitter", "clutter"},
			Strategy:       "dynamic-hide",
			Script:         mutation.RemoveMatching(`[aria-label="Who to follow"]`, true),
		},

		// Imgur
		{
			ID:             "imgur-remove-homepage-feed",
			Description:    "Removes the feed from the imgur homepage",
			URLPattern:     imgurPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:imgur", "scroller"},
			Strategy:       "dynamic-hide",
			Script:         mutation.RemoveMatching(".Spinner-contentWrapper", true),
			When:           landing,
		},
		{
			ID:             "imgur-remove-search",
			Description:    "Removes the search bar",
			URLPattern:     imgurPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:imgur", "clutter"},
			Strategy:       "dynamic-hide",
			Script:         mutation.RemoveMatching(".Searchbar", true),
		},
		{
			ID:             "imgur-remove-right-sidebar",
			Description:    "Removes the right-hand sidebar from posts",
			URLPattern:     imgurPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:imgur", "pronged"},
			Mutate: func(doc *goquery.Document, rc *RequestContext) error {
				switch {
				case imgurGalleryPath.MatchString(rc.Path):
					return mutation.Watch(doc, mutation.HideMatching(".Gallery-Sidebar"), rc.CSPNonce)
				case imgurSubPostPath.MatchString(rc.Path):
					// images fail to load when the bar is removed outright
					return mutation.Watch(doc, mutation.HideMatching("#side-gallery"), rc.CSPNonce)
				}
				return nil
			},
		},
		{
			ID:             "imgur-remove-after-post-explore-feed",
			Description:    `Removes the "Explore Posts" feed after Imgur posts`,
			URLPattern:     imgurPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:imgur", "scroller"},
			Strategy:       "display-none",
			Selector:       ".BottomRecirc",
		},
		{
			ID:             "imgur-remove-left-sidebar",
			Description:    "Hides the left-hand engagement bar on Imgur posts",
			URLPattern:     imgurPattern,
			DefaultEnabled: false,
			Tags:           []string{"site:imgur", "clutter"},
			Strategy:       "opacity-0",
			Selector:       ".Gallery-EngagementBar",
		},

		// Facebook
		{
			ID:             "facebook-remove-homepage-feed",
			Description:    "Removes the feed from the Facebook homepage",
			URLPattern:     facebookPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:facebook", "scroller"},
			Strategy:       "display-none",
			Selector:       "div[role=feed]",
			When:           landing,
		},
		{
			ID:             "facebook-remove-profile-timeline",
			Description:    "Removes the timeline from user profiles",
			URLPattern:     facebookPattern,
			DefaultEnabled: true,
			Tags:           []string{"site:facebook", "scroller"},
			Strategy:       "display-none",
			Selector:       "[data-pagelet=ProfileComposer] ~ *",
			When:           pathMatches(facebookUserPath),
		},
	}
}

// Default builds the frozen registry of the compiled-in catalog.
func Default() (*Registry, error) {
	return Build(Catalog()...)
}
