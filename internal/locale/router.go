package locale

import "context"

// Navigator performs a replace-redirect: the current history entry is
// swapped, not pushed.
type Navigator interface {
	Replace(path string)
}

// BundleLoader fetches the translation bundle for a locale. force bypasses
// any cached bundle from an earlier locale switch.
type BundleLoader interface {
	Load(ctx context.Context, lang Language, force bool) error
}

// Router reconciles the locale segment of incoming paths against the active
// UI locale. All methods must be called from a single goroutine; navigation
// and locale-change events are already serialized by the event loop that
// feeds the router.
type Router struct {
	nav     Navigator
	bundles BundleLoader
	pref    string

	active Language
	ready  bool

	// Last path+locale pair a redirect was issued for. Re-evaluating the
	// same pair would loop forever if the two ever disagreed.
	guardPath string
	guardLang Language
}

func NewRouter(nav Navigator, bundles BundleLoader, pref string) *Router {
	return &Router{nav: nav, bundles: bundles, pref: pref}
}

// Active returns the current UI locale. Empty until the first path is handled.
func (r *Router) Active() Language {
	return r.active
}

// Ready reports whether the first resolution pass, including any bundle
// load it required, has completed. Route content must not render before then.
func (r *Router) Ready() bool {
	return r.ready
}

// HandlePath runs on every navigation event.
func (r *Router) HandlePath(ctx context.Context, path string) error {
	if path == "" {
		path = "/"
	}
	if path == r.guardPath && r.active == r.guardLang {
		r.ready = true
		return nil
	}

	lang, ok := ExtractLanguage(path)
	switch {
	case path == "/":
		target := ResolveDefaultLanguage(r.pref)
		r.redirect(path, target)
		if r.active != target {
			if err := r.bundles.Load(ctx, target, false); err != nil {
				return err
			}
			r.active = target
		}
	case ok:
		if lang != r.active {
			// A path-driven switch does not trust bundles cached by a
			// previous locale: force a reload.
			if err := r.bundles.Load(ctx, lang, true); err != nil {
				return err
			}
			r.active = lang
		}
	default:
		best := r.active
		if !IsSupported(string(best)) {
			best = ResolveDefaultLanguage(r.pref)
		}
		r.redirect(path, best)
		if r.active != best {
			if err := r.bundles.Load(ctx, best, false); err != nil {
				return err
			}
			r.active = best
		}
	}

	r.ready = true
	return nil
}

// HandleLocaleChange runs when the UI locale is switched explicitly. Bundles
// are assumed pre-warmed by the switch action, so none are loaded here.
func (r *Router) HandleLocaleChange(path string, lang Language) {
	if !IsSupported(string(lang)) {
		return
	}
	r.active = lang
	current, ok := ExtractLanguage(path)
	if ok && current == lang {
		return
	}
	r.redirect(path, lang)
}

func (r *Router) redirect(path string, lang Language) {
	target := InjectLanguage(path, lang)
	r.guardPath = path
	r.guardLang = lang
	r.nav.Replace(target)
}
